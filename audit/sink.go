// Package audit records every pipeline stage as an append-only,
// hash-chained event stream.
//
// Writes are asynchronous and batched; the logger falls back to an
// in-memory overflow buffer when the sink cannot keep up, so recording
// never blocks the edit path. Events are immutable once written.

package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/richinex/redline/model"
)

// Filter narrows an audit query. Zero values match everything.
type Filter struct {
	IntentID string
	PatchID  string
	Type     model.EventType
	Since    time.Time
	Limit    int
}

// Sink persists audit batches.
//
// Information Hiding:
// - Storage medium and schema
// - Batch write semantics
type Sink interface {
	// WriteBatch appends events in order. Either the whole batch lands
	// or none of it does.
	WriteBatch(ctx context.Context, events []model.AuditEvent) error

	// Query returns matching events in append order.
	Query(ctx context.Context, f Filter) ([]model.AuditEvent, error)

	// Stats returns event counts per event type.
	Stats(ctx context.Context) (map[model.EventType]int, error)

	// LastHash returns the hash of the newest stored event, or "" when
	// the sink is empty.
	LastHash(ctx context.Context) (string, error)

	// Close releases the sink.
	Close() error
}

// PatchStore persists intents and patches next to the event stream,
// content-addressed. Sinks without durable storage may omit it; the
// engine checks for the interface at runtime.
type PatchStore interface {
	SaveIntent(ctx context.Context, it *model.EditIntent) error
	SavePatch(ctx context.Context, p *model.BlockPatch) error
	LoadPatch(ctx context.Context, patchID string) (*model.BlockPatch, error)
}

// MemorySink keeps events in memory. Useful for testing and as the
// durable-enough fallback when no database is configured.
type MemorySink struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// WriteBatch appends events in order.
func (s *MemorySink) WriteBatch(_ context.Context, events []model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// Query returns matching events in append order.
func (s *MemorySink) Query(_ context.Context, f Filter) ([]model.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.AuditEvent
	for _, e := range s.events {
		if !matches(e, f) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Stats returns event counts per type.
func (s *MemorySink) Stats(_ context.Context) (map[model.EventType]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[model.EventType]int{}
	for _, e := range s.events {
		out[e.Type]++
	}
	return out, nil
}

// LastHash returns the hash of the newest event.
func (s *MemorySink) LastHash(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return "", nil
	}
	return s.events[len(s.events)-1].Hash, nil
}

// Close is a no-op.
func (s *MemorySink) Close() error {
	return nil
}

func matches(e model.AuditEvent, f Filter) bool {
	if f.IntentID != "" && e.IntentID != f.IntentID {
		return false
	}
	if f.PatchID != "" && e.PatchID != f.PatchID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// VerifyChain checks that events form an unbroken hash chain starting
// from prevHash ("" for a fresh stream). Returns the index of the first
// broken link, or -1 when the chain is intact.
func VerifyChain(events []model.AuditEvent, prevHash string) int {
	for i, e := range events {
		if e.PrevHash != prevHash {
			return i
		}
		if e.ComputeHash() != e.Hash {
			return i
		}
		prevHash = e.Hash
	}
	return -1
}

// SortByTime orders events by timestamp, stable on append order.
func SortByTime(events []model.AuditEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// Verify MemorySink implements Sink
var _ Sink = (*MemorySink)(nil)
