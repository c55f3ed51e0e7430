package model

import (
	"strings"
	"time"
)

// Gender is the self-reported gender used to pick gendered titles.
type Gender string

const (
	GenderUnset  Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// ParseGender normalizes a user-supplied gender. Unrecognized values are
// treated as unset.
func ParseGender(s string) Gender {
	switch Gender(strings.ToLower(strings.TrimSpace(s))) {
	case GenderMale:
		return GenderMale
	case GenderFemale:
		return GenderFemale
	case GenderOther:
		return GenderOther
	default:
		return GenderUnset
	}
}

// User is a registered player together with its accrual state.
type User struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Gender           Gender     `json:"gender,omitempty"`
	Score            float64    `json:"score"`
	MissedTrainCount int        `json:"missed_train_count"`
	LastMissedAt     *time.Time `json:"last_missed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID   string
	Username string
}

// RankEntry is one row of the score ranking.
type RankEntry struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Gender   Gender  `json:"-"`
	Score    float64 `json:"score"`
	Title    string  `json:"status"`
}
