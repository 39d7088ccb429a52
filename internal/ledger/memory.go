package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/quickserve/servegate/internal/model"
)

// MemoryRepo is an in-process EventRepo used in tests and when no database
// is configured. Events are copied on the way in and out so callers can
// never mutate a stored record through a shared pointer.
type MemoryRepo struct {
	mu     sync.RWMutex
	events []*model.AuditEvent
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Insert(ctx context.Context, event *model.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	expected := uint64(len(r.events)) + 1
	if event.Seq != expected {
		return fmt.Errorf("duplicate or out-of-order seq %d (expected %d)", event.Seq, expected)
	}
	cp := *event
	r.events = append(r.events, &cp)
	return nil
}

func (r *MemoryRepo) Tail(ctx context.Context) (*model.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.events) == 0 {
		return nil, nil
	}
	cp := *r.events[len(r.events)-1]
	return &cp, nil
}

func (r *MemoryRepo) Range(ctx context.Context, from, to uint64) ([]*model.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.AuditEvent, 0, len(r.events))
	for _, e := range r.events {
		if from > 0 && e.Seq < from {
			continue
		}
		if to > 0 && e.Seq > to {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryRepo) BySubject(ctx context.Context, subjectID string, limit int) ([]*model.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.AuditEvent, 0, limit)
	for _, e := range r.events {
		if e.SubjectID != subjectID {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepo) ByActor(ctx context.Context, actorID string, limit int) ([]*model.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.AuditEvent, 0, limit)
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if e.ActorID == nil || *e.ActorID != actorID {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Tamper overwrites a stored field in place. Test helper for integrity
// checks; there is deliberately no production path to it.
func (r *MemoryRepo) Tamper(seq uint64, mutate func(*model.AuditEvent)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Seq == seq {
			mutate(e)
			return true
		}
	}
	return false
}
