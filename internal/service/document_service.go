package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quickserve/servegate/internal/ledger"
	"github.com/quickserve/servegate/internal/model"
	"github.com/quickserve/servegate/internal/pkg/apperrors"
	"github.com/quickserve/servegate/internal/pkg/logger"
	"github.com/quickserve/servegate/internal/pkg/timeutil"
	"github.com/quickserve/servegate/internal/redemption"
	"github.com/shopspring/decimal"
)

// DocumentStore is the external content-addressed byte store. This service
// never reads or writes document content; it only checks that the claimed
// hash resolves to stored bytes before registering a document.
type DocumentStore interface {
	Exists(ctx context.Context, contentHash string) (bool, error)
}

// NotificationSender delivers the redemption link to the recipient.
// External collaborator; transport is out of scope here.
type NotificationSender interface {
	SendRedemptionLink(ctx context.Context, doc *model.Document, downloadURL string) error
}

// PortalRepo is the CRUD surface the document service needs. Satisfied by
// repository.PortalStore.
type PortalRepo interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListSentDocuments(ctx context.Context, senderID string, limit int) ([]*model.Document, error)
	MarkServed(ctx context.Context, id string) error
	MarkDownloaded(ctx context.Context, id string) error
	RecordFee(ctx context.Context, fee *model.ServiceFee) error
}

type DocumentService struct {
	portal     PortalRepo
	redemption *redemption.Service
	ledger     *ledger.Service
	notifier   NotificationSender
	store      DocumentStore
	baseURL    string
	tokenTTL   time.Duration
}

func NewDocumentService(portal PortalRepo, red *redemption.Service, ledgerSvc *ledger.Service, notifier NotificationSender, baseURL string, tokenTTL time.Duration) *DocumentService {
	return &DocumentService{
		portal:     portal,
		redemption: red,
		ledger:     ledgerSvc,
		notifier:   notifier,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokenTTL:   tokenTTL,
	}
}

// SetDocumentStore enables the upload-time existence check against the
// external byte store. Without a store the registration is taken on trust.
func (s *DocumentService) SetDocumentStore(store DocumentStore) {
	s.store = store
}

// RegisterUpload records a document the external store already holds,
// issues its redemption link, notifies the recipient and marks the
// document served (ECTA: service occurs on notification, not download).
func (s *DocumentService) RegisterUpload(ctx context.Context, sender *model.User, req *model.UploadDocumentRequest, clientAddr, userAgent string) (*model.IssueLinkResponse, error) {
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}

	doc := &model.Document{
		ID:               uuid.NewString(),
		OriginalFilename: req.OriginalFilename,
		StoredFilename:   storedFilename(req.OriginalFilename),
		FileSize:         req.FileSize,
		ContentType:      contentType,
		ContentHash:      req.ContentHash,
		SenderID:         sender.ID,
		SenderEmail:      sender.Email,
		SenderName:       sender.FullName,
		RecipientEmail:   req.RecipientEmail,
		RecipientName:    req.RecipientName,
		MatterReference:  req.MatterReference,
		Description:      req.Description,
		Status:           model.DocStatusPending,
		CreatedAt:        timeutil.NowUTC(),
	}

	if s.store != nil && doc.ContentHash != "" {
		exists, err := s.store.Exists(ctx, doc.ContentHash)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrInternal, "document store unavailable", err)
		}
		if !exists {
			return nil, apperrors.New(apperrors.ErrNotFound, "document bytes not found in store", nil)
		}
	}

	if err := s.portal.CreateDocument(ctx, doc); err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "failed to register document", err)
	}

	if _, err := s.ledger.Append(ctx, model.EventDraft{
		ActorID:    &sender.ID,
		Action:     model.ActionDocumentUploaded,
		SubjectID:  doc.ID,
		ClientAddr: clientAddr,
		UserAgent:  userAgent,
		Metadata: map[string]any{
			"filename":         doc.OriginalFilename,
			"content_hash":     doc.ContentHash,
			"recipient":        doc.RecipientEmail,
			"matter_reference": doc.MatterReference,
		},
	}); err != nil {
		return nil, err
	}

	return s.issueAndNotify(ctx, doc)
}

// IssueLink (re)issues a redemption link for an existing document, e.g.
// when the original mail bounced. Previous tokens stay valid until
// consumed or expired; each issuance is separately audited.
func (s *DocumentService) IssueLink(ctx context.Context, documentID string, actorID string) (*model.IssueLinkResponse, error) {
	doc, err := s.portal.GetDocument(ctx, documentID)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "failed to load document", err)
	}
	if doc == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "document not found", nil)
	}
	if doc.SenderID != actorID {
		return nil, apperrors.New(apperrors.ErrAuthFailed, "only the sender may issue links", nil)
	}
	return s.issueAndNotify(ctx, doc)
}

func (s *DocumentService) issueAndNotify(ctx context.Context, doc *model.Document) (*model.IssueLinkResponse, error) {
	token, err := s.redemption.Issue(ctx, doc.ID, doc.RecipientEmail, s.tokenTTL)
	if err != nil {
		return nil, err
	}

	downloadURL := fmt.Sprintf("%s/redeem/%s", s.baseURL, token.TokenValue)

	if s.notifier != nil {
		if err := s.notifier.SendRedemptionLink(ctx, doc, downloadURL); err != nil {
			// Service has not legally occurred without notification; the
			// issued token stays usable if the caller retries.
			return nil, apperrors.New(apperrors.ErrInternal, "failed to notify recipient", err)
		}
		if _, err := s.ledger.Append(ctx, model.EventDraft{
			Action:    model.ActionNotificationSent,
			SubjectID: doc.ID,
			Metadata:  map[string]any{"recipient": doc.RecipientEmail},
		}); err != nil {
			return nil, err
		}
	}

	if err := s.portal.MarkServed(ctx, doc.ID); err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "failed to mark document served", err)
	}

	return &model.IssueLinkResponse{
		DocumentID:  doc.ID,
		DownloadURL: downloadURL,
		ExpiresAt:   token.ExpiresAt,
	}, nil
}

// ConfirmDownload mirrors a successful redemption into the portal record.
// The ledger event already exists; this only updates the CRUD view.
func (s *DocumentService) ConfirmDownload(ctx context.Context, documentID string) {
	if err := s.portal.MarkDownloaded(ctx, documentID); err != nil {
		logger.Warn("failed to mark document downloaded", "document_id", documentID, "error", err)
	}
}

// RecordAuthFailure leaves a ledger trace for a rejected credential so
// brute-force attempts are visible in the audit trail. Best effort; a
// failed append must not mask the 401.
func (s *DocumentService) RecordAuthFailure(ctx context.Context, clientAddr, userAgent string) {
	if _, err := s.ledger.Append(ctx, model.EventDraft{
		Action:     model.ActionLoginFailed,
		SubjectID:  "auth",
		ClientAddr: clientAddr,
		UserAgent:  userAgent,
	}); err != nil {
		logger.Warn("failed to audit auth failure", "error", err)
	}
}

// GetDocument exposes the portal record for handlers.
func (s *DocumentService) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	return s.portal.GetDocument(ctx, id)
}

func (s *DocumentService) ListSent(ctx context.Context, senderID string, limit int) ([]*model.Document, error) {
	return s.portal.ListSentDocuments(ctx, senderID, limit)
}

// RecordFee stores a walk-in service fee and audits it.
func (s *DocumentService) RecordFee(ctx context.Context, documentID, actorID string, amount decimal.Decimal, currency string) (*model.ServiceFee, error) {
	if amount.IsNegative() || amount.IsZero() {
		return nil, apperrors.NewInvalidRequest("fee amount must be positive")
	}
	doc, err := s.portal.GetDocument(ctx, documentID)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "failed to load document", err)
	}
	if doc == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "document not found", nil)
	}
	if currency == "" {
		currency = "ZAR"
	}

	fee := &model.ServiceFee{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Amount:     amount,
		Currency:   currency,
		RecordedBy: actorID,
		RecordedAt: timeutil.NowUTC(),
	}
	if err := s.portal.RecordFee(ctx, fee); err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "failed to record fee", err)
	}

	if _, err := s.ledger.Append(ctx, model.EventDraft{
		ActorID:   &actorID,
		Action:    model.ActionServiceFee,
		SubjectID: documentID,
		Metadata: map[string]any{
			"amount":   amount.StringFixed(2),
			"currency": currency,
		},
	}); err != nil {
		return nil, err
	}

	return fee, nil
}

func storedFilename(original string) string {
	ext := strings.ToLower(path.Ext(original))
	return strings.ReplaceAll(uuid.NewString(), "-", "") + ext
}
