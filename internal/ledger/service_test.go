package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/quickserve/servegate/internal/model"
	"github.com/stretchr/testify/assert"
)

func appendN(t *testing.T, svc *Service, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := svc.Append(context.Background(), model.EventDraft{
			Action:     model.ActionDocumentUploaded,
			SubjectID:  fmt.Sprintf("doc-%d", i),
			ClientAddr: "203.0.113.7",
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

func TestAppendAssignsGapFreeSequence(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	appendN(t, svc, 5)

	events, err := repo.Range(context.Background(), 0, 0)
	assert.NoError(t, err)
	assert.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
	assert.Equal(t, model.GenesisHash, events[0].PrevHash)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].ThisHash, events[i].PrevHash)
	}
}

func TestVerifyIntactChain(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	appendN(t, svc, 10)

	res, err := svc.Verify(context.Background(), 0, 0)
	assert.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 10, res.EntriesChecked)
	assert.Nil(t, res.FirstInvalidSeq)
}

func TestVerifyEmptyChain(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	res, err := svc.Verify(context.Background(), 0, 0)
	assert.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 0, res.EntriesChecked)
}

func TestVerifyDetectsFieldTampering(t *testing.T) {
	fields := map[string]func(*model.AuditEvent){
		"action":      func(e *model.AuditEvent) { e.Action = model.ActionDocumentDownload },
		"subject_id":  func(e *model.AuditEvent) { e.SubjectID = "doc-evil" },
		"client_addr": func(e *model.AuditEvent) { e.ClientAddr = "198.51.100.1" },
		"user_agent":  func(e *model.AuditEvent) { e.UserAgent = "curl/8.0" },
		"timestamp":   func(e *model.AuditEvent) { e.CreatedAt = e.CreatedAt.Add(1) },
		"metadata":    func(e *model.AuditEvent) { e.MetadataJSON = `{"forged":true}` },
	}

	for name, mutate := range fields {
		t.Run(name, func(t *testing.T) {
			repo := NewMemoryRepo()
			svc := NewService(repo, nil)
			appendN(t, svc, 7)

			if !repo.Tamper(4, mutate) {
				t.Fatalf("tamper target not found")
			}

			res, err := svc.Verify(context.Background(), 0, 0)
			assert.NoError(t, err)
			assert.False(t, res.Valid)
			if assert.NotNil(t, res.FirstInvalidSeq) {
				assert.Equal(t, uint64(4), *res.FirstInvalidSeq)
			}
		})
	}
}

func TestVerifyDetectsBrokenLinkage(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	appendN(t, svc, 5)

	// Rewrite event 3 entirely, recomputing a self-consistent hash but
	// leaving its prev_hash pointing at a forged value.
	repo.Tamper(3, func(e *model.AuditEvent) {
		e.PrevHash = model.GenesisHash
		e.ThisHash = e.ComputeHash()
	})

	res, err := svc.Verify(context.Background(), 0, 0)
	assert.NoError(t, err)
	assert.False(t, res.Valid)
	if assert.NotNil(t, res.FirstInvalidSeq) {
		assert.Equal(t, uint64(3), *res.FirstInvalidSeq)
	}
}

func TestVerifySubRangeUsesPredecessorLinkage(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	appendN(t, svc, 10)

	res, err := svc.Verify(context.Background(), 4, 8)
	assert.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 5, res.EntriesChecked)

	repo.Tamper(6, func(e *model.AuditEvent) { e.SubjectID = "doc-forged" })
	res, err = svc.Verify(context.Background(), 4, 8)
	assert.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, uint64(6), *res.FirstInvalidSeq)
}

func TestConcurrentAppendersSerialize(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	const writers = 16
	const perWriter = 25

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := svc.Append(context.Background(), model.EventDraft{
					Action:    model.ActionLinkIssued,
					SubjectID: fmt.Sprintf("doc-%d-%d", w, i),
				})
				if err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent append failed: %v", err)
	}

	res, err := svc.Verify(context.Background(), 0, 0)
	assert.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, writers*perWriter, res.EntriesChecked)
}

func TestAppendTruncatesUserAgent(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	long := make([]byte, 900)
	for i := range long {
		long[i] = 'a'
	}
	event, err := svc.Append(context.Background(), model.EventDraft{
		Action:    model.ActionLoginFailed,
		UserAgent: string(long),
	})
	assert.NoError(t, err)
	assert.Len(t, event.UserAgent, 500)
	assert.True(t, event.VerifyHash())
}

// TIMESTAMPTZ stores microseconds, so a digest computed over nanosecond
// precision would break on every database round trip. Appended events must
// hash identically after their timestamp is clipped to what the column
// retains.
func TestVerifySurvivesTimestampStoragePrecision(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	appendN(t, svc, 6)

	for seq := uint64(1); seq <= 6; seq++ {
		repo.Tamper(seq, func(e *model.AuditEvent) {
			e.CreatedAt = e.CreatedAt.Truncate(time.Microsecond)
		})
	}

	events, err := repo.Range(context.Background(), 0, 0)
	assert.NoError(t, err)
	for _, e := range events {
		assert.True(t, e.VerifyHash(), "seq %d digest changed across storage round trip", e.Seq)
	}

	res, err := svc.Verify(context.Background(), 0, 0)
	assert.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 6, res.EntriesChecked)
}

// blockOnceMirror stalls its first publish until released. Lets the test
// observe whether a hung mirror holds up subsequent appends.
type blockOnceMirror struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newBlockOnceMirror() *blockOnceMirror {
	return &blockOnceMirror{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (m *blockOnceMirror) Publish(ctx context.Context, event *model.AuditEvent) error {
	m.once.Do(func() {
		close(m.entered)
		<-m.release
	})
	return nil
}

func TestSlowMirrorDoesNotBlockAppends(t *testing.T) {
	mirror := newBlockOnceMirror()
	svc := NewService(NewMemoryRepo(), mirror)

	first := make(chan error, 1)
	go func() {
		_, err := svc.Append(context.Background(), model.EventDraft{Action: model.ActionLinkIssued})
		first <- err
	}()
	<-mirror.entered

	done := make(chan error, 1)
	go func() {
		_, err := svc.Append(context.Background(), model.EventDraft{Action: model.ActionDocumentDownload})
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("append blocked behind a stalled mirror publish")
	}

	close(mirror.release)
	assert.NoError(t, <-first)
}

func TestExportEnvelope(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	appendN(t, svc, 3)

	env, err := svc.Export(context.Background(), 0, 0)
	assert.NoError(t, err)
	assert.Equal(t, 3, env.EntryCount)
	assert.Len(t, env.Entries, 3)
	assert.False(t, env.ExportTimestamp.IsZero())
}

type failingRepo struct {
	*MemoryRepo
	fail bool
}

func (r *failingRepo) Insert(ctx context.Context, e *model.AuditEvent) error {
	if r.fail {
		return fmt.Errorf("storage unavailable")
	}
	return r.MemoryRepo.Insert(ctx, e)
}

func TestFailedInsertDoesNotAdvanceSequence(t *testing.T) {
	repo := &failingRepo{MemoryRepo: NewMemoryRepo()}
	svc := NewService(repo, nil)
	appendN(t, svc, 2)

	repo.fail = true
	_, err := svc.Append(context.Background(), model.EventDraft{Action: model.ActionLinkIssued})
	assert.Error(t, err)

	repo.fail = false
	event, err := svc.Append(context.Background(), model.EventDraft{Action: model.ActionLinkIssued})
	assert.NoError(t, err)
	assert.Equal(t, uint64(3), event.Seq)

	res, _ := svc.Verify(context.Background(), 0, 0)
	assert.True(t, res.Valid)
}
