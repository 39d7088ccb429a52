// Package ledger implements the append-only, hash-chained audit ledger.
// The chain from genesis to tail is the sole authority on what happened;
// a broken chain is reported, never repaired.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/quickserve/servegate/internal/model"
	"github.com/quickserve/servegate/internal/pkg/logger"
	"github.com/quickserve/servegate/internal/pkg/metrics"
	"github.com/quickserve/servegate/internal/pkg/timeutil"
)

const maxUserAgentLen = 500

// EventRepo persists ledger events. Insert must be atomic and must fail on a
// duplicate sequence number so a lost race can never overwrite an event.
type EventRepo interface {
	Insert(ctx context.Context, event *model.AuditEvent) error
	Tail(ctx context.Context) (*model.AuditEvent, error)
	// Range returns events with from <= seq <= to in ascending order.
	// Zero for either bound leaves that end open.
	Range(ctx context.Context, from, to uint64) ([]*model.AuditEvent, error)
	BySubject(ctx context.Context, subjectID string, limit int) ([]*model.AuditEvent, error)
	ByActor(ctx context.Context, actorID string, limit int) ([]*model.AuditEvent, error)
}

// Mirror receives a copy of every appended event for operational dashboards.
// Mirror failures never fail an append; the repo is the source of truth.
type Mirror interface {
	Publish(ctx context.Context, event *model.AuditEvent) error
}

// Service owns the ledger tail. Append is the single serialization point
// for the whole system: the mutex plus the repo's duplicate-seq guard give
// a total order over all audit events regardless of request interleaving.
type Service struct {
	mu     sync.Mutex
	repo   EventRepo
	mirror Mirror

	tailLoaded bool
	tailSeq    uint64
	tailHash   string
}

func NewService(repo EventRepo, mirror Mirror) *Service {
	return &Service{repo: repo, mirror: mirror}
}

// Append assigns the next sequence number and a server-side UTC timestamp,
// links the event to the current tail, computes its digest and persists it.
// A storage failure leaves the sequence unadvanced; the caller's request
// fails rather than silently losing the event.
func (s *Service) Append(ctx context.Context, draft model.EventDraft) (*model.AuditEvent, error) {
	if draft.Action == "" {
		return nil, fmt.Errorf("ledger: draft missing action")
	}

	event, err := s.appendEvent(ctx, draft)
	if err != nil {
		return nil, err
	}
	metrics.LedgerAppends.WithLabelValues(event.Action).Inc()

	// Publish outside the tail mutex: a slow mirror must not stall the
	// serialization point. Per-event order is already fixed by seq.
	if s.mirror != nil {
		if err := s.mirror.Publish(ctx, event); err != nil {
			logger.Warn("ledger mirror publish failed", "seq", event.Seq, "error", err)
		}
	}

	return event, nil
}

// appendEvent performs the serialized portion of an append: everything
// that reads or advances the tail happens under the mutex.
func (s *Service) appendEvent(ctx context.Context, draft model.EventDraft) (*model.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tailLoaded {
		if err := s.loadTail(ctx); err != nil {
			return nil, fmt.Errorf("ledger: load tail: %w", err)
		}
	}

	ua := draft.UserAgent
	if len(ua) > maxUserAgentLen {
		ua = ua[:maxUserAgentLen]
	}

	metadataJSON := ""
	if len(draft.Metadata) > 0 {
		raw, err := json.Marshal(draft.Metadata)
		if err != nil {
			return nil, fmt.Errorf("ledger: encode metadata: %w", err)
		}
		metadataJSON = string(raw)
	}

	prevHash := s.tailHash
	if s.tailSeq == 0 {
		prevHash = model.GenesisHash
	}

	// Microsecond precision matches TIMESTAMPTZ storage, so the digest
	// recomputed from a database round trip equals the one computed here.
	event := &model.AuditEvent{
		Seq:          s.tailSeq + 1,
		CreatedAt:    timeutil.NowUTC().Truncate(time.Microsecond),
		ActorID:      draft.ActorID,
		Action:       draft.Action,
		SubjectID:    draft.SubjectID,
		ClientAddr:   draft.ClientAddr,
		UserAgent:    ua,
		MetadataJSON: metadataJSON,
		PrevHash:     prevHash,
	}
	event.ThisHash = event.ComputeHash()

	if err := s.repo.Insert(ctx, event); err != nil {
		return nil, fmt.Errorf("ledger: append seq %d: %w", event.Seq, err)
	}

	s.tailSeq = event.Seq
	s.tailHash = event.ThisHash

	return event, nil
}

func (s *Service) loadTail(ctx context.Context) error {
	tail, err := s.repo.Tail(ctx)
	if err != nil {
		return err
	}
	if tail != nil {
		s.tailSeq = tail.Seq
		s.tailHash = tail.ThisHash
	}
	s.tailLoaded = true
	return nil
}

// Verify recomputes every digest in [from, to] and checks chain linkage,
// reporting the first break point. Zero bounds cover the full chain.
func (s *Service) Verify(ctx context.Context, from, to uint64) (*model.IntegrityResult, error) {
	events, err := s.repo.Range(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("ledger: verify range: %w", err)
	}
	if len(events) == 0 {
		return &model.IntegrityResult{Valid: true}, nil
	}

	// Linkage for a mid-chain start needs the predecessor's digest.
	prevHash := model.GenesisHash
	if first := events[0].Seq; first > 1 {
		pred, err := s.repo.Range(ctx, first-1, first-1)
		if err != nil {
			return nil, fmt.Errorf("ledger: load predecessor: %w", err)
		}
		if len(pred) != 1 {
			seq := first
			return &model.IntegrityResult{
				EntriesChecked:  0,
				FirstInvalidSeq: &seq,
				Error:           fmt.Sprintf("event %d has no stored predecessor", first),
			}, nil
		}
		prevHash = pred[0].ThisHash
	}

	checked := 0
	expectedSeq := events[0].Seq
	for _, event := range events {
		checked++
		seq := event.Seq

		if seq != expectedSeq {
			return &model.IntegrityResult{
				EntriesChecked:  checked,
				FirstInvalidSeq: &seq,
				Error:           fmt.Sprintf("sequence gap: expected %d, found %d", expectedSeq, seq),
			}, nil
		}
		if event.PrevHash != prevHash {
			return &model.IntegrityResult{
				EntriesChecked:  checked,
				FirstInvalidSeq: &seq,
				Error:           fmt.Sprintf("event %d chain broken: prev_hash mismatch", seq),
			}, nil
		}
		if !event.VerifyHash() {
			return &model.IntegrityResult{
				EntriesChecked:  checked,
				FirstInvalidSeq: &seq,
				Error:           fmt.Sprintf("event %d hash mismatch: data may have been tampered", seq),
			}, nil
		}

		prevHash = event.ThisHash
		expectedSeq = seq + 1
	}

	return &model.IntegrityResult{Valid: true, EntriesChecked: checked}, nil
}

// Export returns the ordered events in range wrapped in a court-submission
// envelope.
func (s *Service) Export(ctx context.Context, from, to uint64) (*model.ExportEnvelope, error) {
	events, err := s.repo.Range(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("ledger: export range: %w", err)
	}
	return &model.ExportEnvelope{
		ExportTimestamp: timeutil.NowUTC(),
		EntryCount:      len(events),
		Entries:         events,
	}, nil
}

// SubjectTrail returns the chronological trail for one subject (document).
func (s *Service) SubjectTrail(ctx context.Context, subjectID string, limit int) ([]*model.AuditEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.repo.BySubject(ctx, subjectID, limit)
}

// ActorTrail returns the most recent events for one actor.
func (s *Service) ActorTrail(ctx context.Context, actorID string, limit int) ([]*model.AuditEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.repo.ByActor(ctx, actorID, limit)
}
