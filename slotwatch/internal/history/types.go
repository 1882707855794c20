// Package history keeps the record of past polls and of the openings that
// were already announced. The SQLite Store survives restarts; Memory is
// used when no database path is configured.
package history

import (
	"context"
	"time"
)

// Check statuses.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusCanceled = "canceled" // interrupted by shutdown, not a failure
)

// Month is the scrape result for one calendar view.
type Month struct {
	Label string   `json:"label"`
	Dates []string `json:"dates"`
}

// Check is one poll iteration.
type Check struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Months    []Month       `json:"months"`
	Alerts    int           `json:"alerts"`
}

// Ledger is implemented by Store and Memory.
type Ledger interface {
	RecordCheck(ctx context.Context, c Check) error
	RecentChecks(ctx context.Context, limit int) ([]Check, error)
	LastNotified(ctx context.Context, month string) (dates string, ok bool, err error)
	MarkNotified(ctx context.Context, month, dates string) error
	Forget(ctx context.Context, month string) error
	Close() error
}

const defaultLimit = 50
