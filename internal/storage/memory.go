package storage

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Store.
type Memory struct {
	mu      sync.Mutex
	records []Record
	closed  bool
	// FailAppend, when set, is returned by Append.
	FailAppend error
}

func NewMemory(seed ...Record) *Memory {
	return &Memory{records: append([]Record(nil), seed...)}
}

func (m *Memory) Append(ctx context.Context, r Record) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.FailAppend != nil {
		return m.FailAppend
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	m.records = append(m.records, r)
	return nil
}

func (m *Memory) ContainsRecipient(ctx context.Context, to string) (bool, error) {
	_ = ctx
	key := NormalizeRecipient(to)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if NormalizeRecipient(r.To) == key {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) LifetimeTotals(ctx context.Context) (Totals, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	var t Totals
	for _, r := range m.records {
		if r.OK {
			t.OK++
		} else {
			t.Fail++
		}
	}
	return t, nil
}

func (m *Memory) Records(ctx context.Context, q Query) ([]Record, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	return q.apply(m.records), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
