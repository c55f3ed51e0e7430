// Package store persists users and location records and provides the
// transactional primitives used by the location log.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/solalog/solalog-server/internal/model"
	"github.com/solalog/solalog-server/internal/weather"
)

var (
	// ErrUserNotFound is returned when an operation targets an unknown user.
	ErrUserNotFound = eris.New("store: user not found")
	// ErrUsernameTaken is returned by CreateUser for a duplicate username.
	ErrUsernameTaken = eris.New("store: username taken")
)

// Store defines the persistence interface for the location log.
type Store interface {
	// Users
	CreateUser(ctx context.Context, username string, gender model.Gender) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)

	// InTx runs fn inside a single transaction. The transaction commits when
	// fn returns nil and rolls back otherwise, including on context
	// cancellation.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Read models
	WeatherCounts(ctx context.Context, userID string) (map[weather.Category]int, error)
	LatestLocations(ctx context.Context) ([]model.UserLocation, error)
	Ranking(ctx context.Context, limit int) ([]model.RankEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx holds the write operations of one location log.
type Tx interface {
	// MarkMissed increments the user's missed-train count and sets
	// lastMissedAt to now, but only when lastMissedAt is null or older than
	// now-cooldown. It reports whether the increment happened. The check
	// and the update are one statement.
	MarkMissed(ctx context.Context, userID string, now time.Time, cooldown time.Duration) (bool, error)

	// InsertLocation appends a location record and sets rec.ID.
	InsertLocation(ctx context.Context, rec *model.LocationRecord) error

	// AddScore adds delta to the user's score and returns the new score.
	AddScore(ctx context.Context, userID string, delta float64) (float64, error)
}

// nullString maps an empty string to NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
