package minter

import (
	"context"
)

// Journal persists attempts so a lost submit response can be reconciled
// against the chain later.
type Journal interface {
	RecordAttempt(ctx context.Context, attempt *Attempt) error
	GetAttempt(ctx context.Context, id string) (*Attempt, error)
	ListAttempts(ctx context.Context, filter AttemptFilter) ([]*Attempt, error)
	Close() error
}

type AttemptFilter struct {
	SessionID string
	// Pending selects attempts that have a pending tx id but no confirmed
	// tx id.
	Pending bool
	Limit   int
}

const defaultAttemptLimit = 100

func (f AttemptFilter) limit() int {
	if f.Limit <= 0 {
		return defaultAttemptLimit
	}
	return f.Limit
}

func (f AttemptFilter) matches(a *Attempt) bool {
	if f.SessionID != "" && a.SessionID != f.SessionID {
		return false
	}
	if f.Pending && (a.PendingTxID == "" || a.TxID != "") {
		return false
	}
	return true
}
