package service

import (
	"context"
	"testing"
	"time"

	"github.com/quickserve/servegate/internal/ledger"
	"github.com/quickserve/servegate/internal/model"
	"github.com/quickserve/servegate/internal/redemption"
	"github.com/quickserve/servegate/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	hashes map[string]bool
}

func (s *stubStore) Exists(ctx context.Context, contentHash string) (bool, error) {
	return s.hashes[contentHash], nil
}

func newTestService(t *testing.T) (*DocumentService, *repository.MemoryPortalStore, *ledger.Service) {
	t.Helper()
	portal := repository.NewMemoryPortalStore()
	ledgerSvc := ledger.NewService(ledger.NewMemoryRepo(), nil)
	redemptionSvc := redemption.NewService(redemption.NewMemoryTokenRepo(), ledgerSvc, nil)
	svc := NewDocumentService(portal, redemptionSvc, ledgerSvc, nil, "https://portal.example", 72*time.Hour)
	return svc, portal, ledgerSvc
}

func sender() *model.User {
	return &model.User{ID: "u-1", Email: "att@example.co.za", FullName: "A. Attorney"}
}

func uploadReq() *model.UploadDocumentRequest {
	return &model.UploadDocumentRequest{
		OriginalFilename: "Notice of Motion.PDF",
		FileSize:         4096,
		ContentHash:      "feed",
		RecipientEmail:   "resp@example.com",
	}
}

func TestRegisterUploadServesAndAudits(t *testing.T) {
	svc, portal, ledgerSvc := newTestService(t)
	ctx := context.Background()

	resp, err := svc.RegisterUpload(ctx, sender(), uploadReq(), "203.0.113.9", "agent/1")
	require.NoError(t, err)
	require.Contains(t, resp.DownloadURL, "https://portal.example/redeem/")
	require.NotNil(t, resp.ExpiresAt)

	doc, err := portal.GetDocument(ctx, resp.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.True(t, doc.Served(), "service occurs on link issuance, not download")
	assert.Equal(t, "Notice of Motion.PDF", doc.OriginalFilename)
	assert.NotEqual(t, doc.OriginalFilename, doc.StoredFilename)
	assert.Contains(t, doc.StoredFilename, ".pdf", "stored name keeps a lowercased extension")

	trail, err := ledgerSvc.SubjectTrail(ctx, resp.DocumentID, 10)
	require.NoError(t, err)
	actions := make([]string, 0, len(trail))
	for _, e := range trail {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{model.ActionDocumentUploaded, model.ActionLinkIssued}, actions)
}

func TestRegisterUploadRejectsMissingBytes(t *testing.T) {
	svc, portal, _ := newTestService(t)
	svc.SetDocumentStore(&stubStore{hashes: map[string]bool{"known": true}})
	ctx := context.Background()

	req := uploadReq()
	req.ContentHash = "unknown"
	_, err := svc.RegisterUpload(ctx, sender(), req, "203.0.113.9", "agent/1")
	require.Error(t, err)

	req.ContentHash = "known"
	resp, err := svc.RegisterUpload(ctx, sender(), req, "203.0.113.9", "agent/1")
	require.NoError(t, err)

	doc, err := portal.GetDocument(ctx, resp.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc)
}

func TestIssueLinkDeniedForNonSender(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.RegisterUpload(ctx, sender(), uploadReq(), "203.0.113.9", "agent/1")
	require.NoError(t, err)

	_, err = svc.IssueLink(ctx, resp.DocumentID, "someone-else")
	require.Error(t, err)

	again, err := svc.IssueLink(ctx, resp.DocumentID, "u-1")
	require.NoError(t, err)
	assert.NotEqual(t, resp.DownloadURL, again.DownloadURL, "each issuance mints a fresh token")
}

func TestRecordFeeValidatesAndAudits(t *testing.T) {
	svc, _, ledgerSvc := newTestService(t)
	ctx := context.Background()

	resp, err := svc.RegisterUpload(ctx, sender(), uploadReq(), "203.0.113.9", "agent/1")
	require.NoError(t, err)

	_, err = svc.RecordFee(ctx, resp.DocumentID, "u-1", decimal.Zero, "")
	require.Error(t, err, "zero fee rejected")

	_, err = svc.RecordFee(ctx, "no-such-doc", "u-1", decimal.NewFromInt(50), "")
	require.Error(t, err)

	fee, err := svc.RecordFee(ctx, resp.DocumentID, "u-1", decimal.RequireFromString("150.50"), "")
	require.NoError(t, err)
	assert.Equal(t, "ZAR", fee.Currency)
	assert.True(t, fee.Amount.Equal(decimal.RequireFromString("150.50")))

	trail, err := ledgerSvc.SubjectTrail(ctx, resp.DocumentID, 10)
	require.NoError(t, err)
	last := trail[len(trail)-1]
	assert.Equal(t, model.ActionServiceFee, last.Action)
	assert.Equal(t, "150.50", last.Metadata()["amount"])
}

func TestRecordAuthFailureAppendsEvent(t *testing.T) {
	svc, _, ledgerSvc := newTestService(t)
	ctx := context.Background()

	svc.RecordAuthFailure(ctx, "198.51.100.4", "curl/8.0")

	trail, err := ledgerSvc.SubjectTrail(ctx, "auth", 10)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, model.ActionLoginFailed, trail[0].Action)
	assert.Equal(t, "198.51.100.4", trail[0].ClientAddr)
}
