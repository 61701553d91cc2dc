package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures the ledger.
//
// Driver values:
//   - "file": JSON Lines log (default)
//   - "sqlite": SQLite database file
//   - "memory": process-local, for tests and dry runs
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is one send attempt.
type Record struct {
	At      time.Time
	Account string
	To      string
	OK      bool
	Detail  string
}

// Totals counts records by outcome.
type Totals struct {
	OK   int
	Fail int
}

// Query filters Records. Zero fields match everything. Limit keeps the most
// recent N matches.
type Query struct {
	Account string
	Since   time.Time // inclusive
	Until   time.Time // exclusive
	Limit   int
}

// Store is the send log API used by the scheduler and the logs command.
type Store interface {
	Append(ctx context.Context, r Record) error
	ContainsRecipient(ctx context.Context, to string) (bool, error)
	LifetimeTotals(ctx context.Context) (Totals, error)
	// Records returns matches in chronological order.
	Records(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NormalizeRecipient is the key recipients are compared by.
func NormalizeRecipient(to string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(to), "@"))
}

func (q Query) match(r Record) bool {
	if q.Account != "" && !strings.EqualFold(q.Account, r.Account) {
		return false
	}
	if !q.Since.IsZero() && r.At.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !r.At.Before(q.Until) {
		return false
	}
	return true
}

func (q Query) apply(all []Record) []Record {
	out := make([]Record, 0, len(all))
	for _, r := range all {
		if q.match(r) {
			out = append(out, r)
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}
