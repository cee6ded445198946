package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a record exists but belongs to another user.
	ErrForbidden = errors.New("forbidden")
)

// CacheKind names one refreshable cache for claim bookkeeping.
type CacheKind string

const (
	KindOverview        CacheKind = "overview"
	KindRankedKeywords  CacheKind = "ranked_keywords"
	KindRecommendations CacheKind = "recommendations"
)

// Migration describes one embedded schema migration.
type Migration struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"appliedAt,omitempty"`
}
