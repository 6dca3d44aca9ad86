package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/attaboy/bankroll/internal/domain"
)

// MemoryOutbox keeps emitted events in memory. Used when no database is
// configured and as a recording sink in tests.
type MemoryOutbox struct {
	mu     sync.Mutex
	drafts []domain.OutboxDraft
	limit  int
}

// NewMemoryOutbox creates an unbounded in-memory outbox.
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{}
}

// NewBoundedMemoryOutbox keeps only the most recent limit events.
func NewBoundedMemoryOutbox(limit int) *MemoryOutbox {
	return &MemoryOutbox{limit: limit}
}

func (o *MemoryOutbox) Emit(_ context.Context, draft domain.OutboxDraft) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drafts = append(o.drafts, draft)
	if o.limit > 0 && len(o.drafts) > o.limit {
		o.drafts = o.drafts[len(o.drafts)-o.limit:]
	}
	return nil
}

// Drafts returns a copy of every recorded event in emission order.
func (o *MemoryOutbox) Drafts() []domain.OutboxDraft {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.OutboxDraft, len(o.drafts))
	copy(out, o.drafts)
	return out
}

// ByType returns recorded events of one type.
func (o *MemoryOutbox) ByType(eventType domain.EventType) []domain.OutboxDraft {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []domain.OutboxDraft
	for _, d := range o.drafts {
		if d.EventType == eventType {
			out = append(out, d)
		}
	}
	return out
}

// Reset drops every recorded event.
func (o *MemoryOutbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drafts = nil
}

// FanoutSink emits each event to every sink, joining their errors.
type FanoutSink []domain.EventSink

func (f FanoutSink) Emit(ctx context.Context, draft domain.OutboxDraft) error {
	var errs []error
	for _, s := range f {
		if err := s.Emit(ctx, draft); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
