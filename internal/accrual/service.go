// Package accrual records user locations and turns them into weather score,
// titles and missed-train counts.
package accrual

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solalog/solalog-server/internal/model"
	"github.com/solalog/solalog-server/internal/station"
	"github.com/solalog/solalog-server/internal/store"
	"github.com/solalog/solalog-server/internal/title"
	"github.com/solalog/solalog-server/internal/weather"
	"github.com/solalog/solalog-server/pkg/openweather"
)

const (
	// DefaultMissCooldown is the minimum gap between two missed-train counts.
	DefaultMissCooldown = 30 * time.Minute
	// RankingSize is the number of users returned by Ranking.
	RankingSize = 10
)

// WeatherLookup resolves current conditions for a coordinate.
type WeatherLookup interface {
	Current(ctx context.Context, lat, lon float64) (*openweather.Conditions, error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithMissCooldown sets the missed-train cooldown.
func WithMissCooldown(d time.Duration) Option {
	return func(s *Service) {
		s.cooldown = d
	}
}

// WithTxTimeout bounds each location log transaction, including the weather
// lookup made inside it. Zero disables the bound.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.txTimeout = d
	}
}

// Service implements the location log and its read models.
type Service struct {
	store     store.Store
	stations  *station.Index
	weather   WeatherLookup
	cooldown  time.Duration
	txTimeout time.Duration
	now       func() time.Time
}

// NewService creates a Service.
func NewService(st store.Store, stations *station.Index, wx WeatherLookup, opts ...Option) *Service {
	s := &Service{
		store:    st,
		stations: stations,
		weather:  wx,
		cooldown: DefaultMissCooldown,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogResult is the outcome of a successful location log.
type LogResult struct {
	Weather     weather.Category
	ScoreDelta  float64
	Score       float64
	PlaceName   string
	MissedTrain bool
	// Station is the matched station name, empty when none was in range.
	Station string
}

// LogLocation records a location for the caller in one transaction: the
// missed-train check, the weather lookup, the location record and the score
// change either all persist or none do.
func (s *Service) LogLocation(ctx context.Context, id model.Identity, p model.Point) (*LogResult, error) {
	if id.UserID == "" {
		return nil, newError(KindInvalidInput, eris.New("user id is required"))
	}
	if err := p.Validate(); err != nil {
		return nil, newError(KindInvalidInput, err)
	}
	lat, lon := p.Lat(), p.Lon()
	now := s.now().UTC()

	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	log := zap.L().With(zap.String("user_id", id.UserID))
	res := &LogResult{}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if st, ok := s.stations.FindNearby(lat, lon); ok {
			res.Station = st.Name
			missed, err := tx.MarkMissed(ctx, id.UserID, now, s.cooldown)
			if err != nil {
				return newError(KindStorage, err)
			}
			res.MissedTrain = missed
		}

		cond, err := s.weather.Current(ctx, lat, lon)
		if err != nil {
			return newError(KindUpstream, err)
		}
		res.Weather = weather.Classify(cond.Code)
		res.ScoreDelta = weather.Delta(res.Weather)
		res.PlaceName = cond.PlaceName

		rec := &model.LocationRecord{
			UserID:     id.UserID,
			Latitude:   lat,
			Longitude:  lon,
			Weather:    res.Weather,
			PlaceName:  cond.PlaceName,
			RecordedAt: now,
		}
		if err := tx.InsertLocation(ctx, rec); err != nil {
			return newError(KindStorage, err)
		}

		res.Score, err = tx.AddScore(ctx, id.UserID, res.ScoreDelta)
		if err != nil {
			return newError(KindStorage, err)
		}
		return nil
	})
	if err != nil {
		if KindOf(err) == KindUnknown {
			err = newError(KindStorage, err)
		}
		log.Warn("location log failed", zap.Stringer("kind", KindOf(err)), zap.Error(err))
		return nil, err
	}

	log.Info("location logged",
		zap.String("weather", string(res.Weather)),
		zap.Float64("score_delta", res.ScoreDelta),
		zap.Float64("score", res.Score),
		zap.String("station", res.Station),
		zap.Bool("missed_train", res.MissedTrain),
	)
	return res, nil
}

// Status is a user's current standing.
type Status struct {
	Title            string
	Score            float64
	MissedTrainCount int
	// Counts has an entry for every weather category, zero included.
	Counts map[weather.Category]int
}

// Status returns the user's title, score, missed-train count and the number
// of location records per weather category.
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	var (
		user   *model.User
		counts map[weather.Category]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.store.GetUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.store.WeatherCounts(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, newError(KindStorage, err)
	}

	all := make(map[weather.Category]int, len(weather.Categories()))
	for _, c := range weather.Categories() {
		all[c] = counts[c]
	}
	return &Status{
		Title:            title.Resolve(user.Score, user.Gender),
		Score:            user.Score,
		MissedTrainCount: user.MissedTrainCount,
		Counts:           all,
	}, nil
}

// Ranking returns the top users by score with their titles.
func (s *Service) Ranking(ctx context.Context) ([]model.RankEntry, error) {
	entries, err := s.store.Ranking(ctx, RankingSize)
	if err != nil {
		return nil, newError(KindStorage, err)
	}
	for i := range entries {
		entries[i].Title = title.Resolve(entries[i].Score, entries[i].Gender)
	}
	return entries, nil
}

// LatestLocations returns every user's most recent location.
func (s *Service) LatestLocations(ctx context.Context) ([]model.UserLocation, error) {
	locs, err := s.store.LatestLocations(ctx)
	if err != nil {
		return nil, newError(KindStorage, err)
	}
	return locs, nil
}
