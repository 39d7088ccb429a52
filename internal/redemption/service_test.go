package redemption

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quickserve/servegate/internal/ledger"
	"github.com/quickserve/servegate/internal/model"
	"github.com/quickserve/servegate/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
)

func newTestService() (*Service, *ledger.Service, *ledger.MemoryRepo) {
	eventRepo := ledger.NewMemoryRepo()
	ledgerSvc := ledger.NewService(eventRepo, nil)
	svc := NewService(NewMemoryTokenRepo(), ledgerSvc, nil)
	return svc, ledgerSvc, eventRepo
}

func errType(t *testing.T, err error) apperrors.ErrorType {
	t.Helper()
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	return appErr.Type
}

func TestIssueThenRedeemSucceedsOnce(t *testing.T) {
	svc, ledgerSvc, _ := newTestService()
	ctx := context.Background()

	token, err := svc.Issue(ctx, "doc-1", "recipient@example.com", time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, model.TokenStateIssued, token.State)
	assert.NotEmpty(t, token.TokenValue)

	res, err := svc.Redeem(ctx, token.TokenValue, "203.0.113.9", "Mozilla/5.0")
	assert.NoError(t, err)
	assert.Equal(t, "doc-1", res.Token.DocumentID)
	assert.Equal(t, model.TokenStateConsumed, res.Token.State)
	assert.Equal(t, model.ActionDocumentDownload, res.Event.Action)

	check, err := ledgerSvc.Verify(ctx, 0, 0)
	assert.NoError(t, err)
	assert.True(t, check.Valid)
}

func TestRedeemUnknownTokenIsNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Redeem(context.Background(), "never-issued", "203.0.113.9", "")
	assert.Equal(t, apperrors.ErrTokenNotFound, errType(t, err))
}

func TestRedeemTwiceIsAlreadyConsumedAndLedgerUnchanged(t *testing.T) {
	svc, ledgerSvc, eventRepo := newTestService()
	ctx := context.Background()

	token, err := svc.Issue(ctx, "doc-2", "r@example.com", time.Hour)
	assert.NoError(t, err)

	_, err = svc.Redeem(ctx, token.TokenValue, "203.0.113.9", "")
	assert.NoError(t, err)

	before, _ := eventRepo.Range(ctx, 0, 0)

	for i := 0; i < 3; i++ {
		_, err = svc.Redeem(ctx, token.TokenValue, "203.0.113.10", "")
		assert.Equal(t, apperrors.ErrTokenConsumed, errType(t, err))
	}

	after, _ := eventRepo.Range(ctx, 0, 0)
	assert.Equal(t, len(before), len(after), "failed redemptions must not pollute the ledger")

	check, _ := ledgerSvc.Verify(ctx, 0, 0)
	assert.True(t, check.Valid)
}

func TestRedeemExpiredToken(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	token, err := svc.Issue(ctx, "doc-3", "r@example.com", time.Nanosecond)
	assert.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = svc.Redeem(ctx, token.TokenValue, "203.0.113.9", "")
	assert.Equal(t, apperrors.ErrTokenExpired, errType(t, err))
}

func TestIssueWithoutTTLNeverExpires(t *testing.T) {
	svc, _, _ := newTestService()
	token, err := svc.Issue(context.Background(), "doc-4", "r@example.com", 0)
	assert.NoError(t, err)
	assert.Nil(t, token.ExpiresAt)
}

func TestConcurrentRedeemExactlyOneWinner(t *testing.T) {
	svc, ledgerSvc, _ := newTestService()
	ctx := context.Background()

	token, err := svc.Issue(ctx, "doc-5", "r@example.com", time.Hour)
	assert.NoError(t, err)

	const attempts = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	consumed := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Redeem(ctx, token.TokenValue, "203.0.113.9", "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) && appErr.Type == apperrors.ErrTokenConsumed {
				consumed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one redemption may win")
	assert.Equal(t, attempts-1, consumed, "all losers must observe AlreadyConsumed")

	// One link.issued + one document.downloaded, nothing else.
	check, _ := ledgerSvc.Verify(ctx, 0, 0)
	assert.True(t, check.Valid)
	assert.Equal(t, 2, check.EntriesChecked)
}

type recordingProofs struct {
	mu    sync.Mutex
	calls int
	trail int
}

func (p *recordingProofs) Generate(ctx context.Context, token *model.RedemptionToken, trail []*model.AuditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.trail = len(trail)
	return nil
}

func TestProofGeneratorInvokedOnceWithTrail(t *testing.T) {
	eventRepo := ledger.NewMemoryRepo()
	ledgerSvc := ledger.NewService(eventRepo, nil)
	proofs := &recordingProofs{}
	svc := NewService(NewMemoryTokenRepo(), ledgerSvc, proofs)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "doc-6", "r@example.com", time.Hour)
	assert.NoError(t, err)

	_, err = svc.Redeem(ctx, token.TokenValue, "203.0.113.9", "")
	assert.NoError(t, err)

	_, _ = svc.Redeem(ctx, token.TokenValue, "203.0.113.9", "")

	assert.Equal(t, 1, proofs.calls)
	assert.Equal(t, 2, proofs.trail, "trail covers link.issued and document.downloaded")
}

func TestTokenValueAbsentFromLedger(t *testing.T) {
	svc, _, eventRepo := newTestService()
	ctx := context.Background()

	token, err := svc.Issue(ctx, "doc-7", "r@example.com", time.Hour)
	assert.NoError(t, err)
	_, err = svc.Redeem(ctx, token.TokenValue, "203.0.113.9", "")
	assert.NoError(t, err)

	events, _ := eventRepo.Range(ctx, 0, 0)
	for _, e := range events {
		assert.NotContains(t, e.MetadataJSON, token.TokenValue)
		assert.NotContains(t, e.SubjectID, token.TokenValue)
	}
}
