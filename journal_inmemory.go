package minter

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type InMemoryJournal struct {
	attempts map[string]Attempt
	mu       sync.RWMutex
}

var _ Journal = &InMemoryJournal{}

func NewInMemoryJournal() *InMemoryJournal {
	return &InMemoryJournal{
		attempts: make(map[string]Attempt),
	}
}

func (j *InMemoryJournal) RecordAttempt(_ context.Context, attempt *Attempt) error {
	if attempt == nil || attempt.ID == "" {
		return errors.New("attempt id is required")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.attempts[attempt.ID] = *attempt
	return nil
}

func (j *InMemoryJournal) GetAttempt(_ context.Context, id string) (*Attempt, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	attempt, ok := j.attempts[id]
	if !ok {
		return nil, errors.Wrapf(ErrAttemptNotFound, "attempt %s", id)
	}

	return &attempt, nil
}

func (j *InMemoryJournal) ListAttempts(_ context.Context, filter AttemptFilter) (attempts []*Attempt, err error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	attempts = make([]*Attempt, 0)
	for _, attempt := range j.attempts {
		if filter.matches(&attempt) {
			a := attempt
			attempts = append(attempts, &a)
		}
	}

	sort.Slice(attempts, func(i, k int) bool {
		return attempts[i].StartedAt.After(attempts[k].StartedAt)
	})

	if len(attempts) > filter.limit() {
		attempts = attempts[:filter.limit()]
	}

	return
}

func (j *InMemoryJournal) Close() error {
	return nil
}
