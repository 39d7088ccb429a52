// Package redemption implements the one-shot document redemption protocol:
// a mailed link converts into exactly one verified proof-of-receipt event,
// no matter how many times or how concurrently it is presented.
package redemption

import (
	"context"
	"fmt"
	"time"

	"github.com/quickserve/servegate/internal/ledger"
	"github.com/quickserve/servegate/internal/model"
	"github.com/quickserve/servegate/internal/pkg/apperrors"
	"github.com/quickserve/servegate/internal/pkg/logger"
	"github.com/quickserve/servegate/internal/pkg/metrics"
	"github.com/quickserve/servegate/internal/pkg/securetoken"
	"github.com/quickserve/servegate/internal/pkg/timeutil"
)

// TokenRepo persists redemption tokens. ConsumeIfIssued is the protocol's
// linchpin: it must perform the Issued->Consumed transition as a single
// conditional write (compare-and-swap), returning the updated token only to
// the one caller whose transition committed.
type TokenRepo interface {
	Create(ctx context.Context, token *model.RedemptionToken) error
	// Get returns (nil, nil) when the token value was never issued.
	Get(ctx context.Context, tokenValue string) (*model.RedemptionToken, error)
	// ConsumeIfIssued atomically transitions the token to Consumed iff its
	// state is Issued and it has not expired at now. Returns (token, true)
	// for the winner, (nil, false) otherwise.
	ConsumeIfIssued(ctx context.Context, tokenValue string, now time.Time, clientAddr, userAgent string) (*model.RedemptionToken, bool, error)
}

// ProofGenerator renders a court-ready proof-of-service artifact after a
// successful redemption. External collaborator; failures are logged, not
// surfaced, because the ledger already holds the authoritative record.
type ProofGenerator interface {
	Generate(ctx context.Context, token *model.RedemptionToken, trail []*model.AuditEvent) error
}

// Result is returned to the caller of a successful Redeem. The document
// bytes are fetched by the document store collaborator, not by this service.
type Result struct {
	Token *model.RedemptionToken
	Event *model.AuditEvent
}

type Service struct {
	tokens TokenRepo
	ledger *ledger.Service
	proofs ProofGenerator
}

func NewService(tokens TokenRepo, ledgerSvc *ledger.Service, proofs ProofGenerator) *Service {
	return &Service{tokens: tokens, ledger: ledgerSvc, proofs: proofs}
}

// Issue creates a single-use token for (documentID, recipient) with ttl
// lifetime (zero ttl means no expiry). The raw token value is returned to
// the caller for link construction and appears nowhere in logs or the
// ledger.
func (s *Service) Issue(ctx context.Context, documentID, recipient string, ttl time.Duration) (*model.RedemptionToken, error) {
	value, err := securetoken.New(securetoken.DefaultBytes)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "token generation failed", err)
	}

	now := timeutil.NowUTC()
	token := &model.RedemptionToken{
		TokenValue: value,
		DocumentID: documentID,
		Recipient:  recipient,
		IssuedAt:   now,
		State:      model.TokenStateIssued,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		token.ExpiresAt = &expires
	}

	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "failed to store redemption token", err)
	}

	if _, err := s.ledger.Append(ctx, model.EventDraft{
		Action:    model.ActionLinkIssued,
		SubjectID: documentID,
		Metadata: map[string]any{
			"recipient": recipient,
		},
	}); err != nil {
		return nil, err
	}

	return token, nil
}

// Redeem performs the atomic-exactly-once consumption. Under concurrent
// calls with the same token exactly one caller gets a Result; every other
// caller (and every retry after success) gets TokenAlreadyConsumed without
// touching the ledger.
func (s *Service) Redeem(ctx context.Context, tokenValue, clientAddr, userAgent string) (*Result, error) {
	now := timeutil.NowUTC()

	token, won, err := s.tokens.ConsumeIfIssued(ctx, tokenValue, now, clientAddr, userAgent)
	if err != nil {
		metrics.RedemptionsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.New(apperrors.ErrInternal, "redemption store failure", err)
	}

	if !won {
		return nil, s.classifyLoss(ctx, tokenValue, now)
	}

	event, err := s.ledger.Append(ctx, model.EventDraft{
		Action:     model.ActionDocumentDownload,
		SubjectID:  token.DocumentID,
		ClientAddr: clientAddr,
		UserAgent:  userAgent,
		Metadata: map[string]any{
			"recipient":   token.Recipient,
			"consumed_at": token.ConsumedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		// The consumption committed but the proof event did not. Surface
		// the failure; the token row still shows the consumption facts.
		metrics.RedemptionsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.New(apperrors.ErrInternal, "redemption succeeded but audit append failed", err)
	}

	metrics.RedemptionsTotal.WithLabelValues("success").Inc()

	if s.proofs != nil {
		trail, trailErr := s.ledger.SubjectTrail(ctx, token.DocumentID, 100)
		if trailErr == nil {
			trailErr = s.proofs.Generate(ctx, token, trail)
		}
		if trailErr != nil {
			logger.Warn("proof-of-service generation failed",
				"document_id", token.DocumentID, "error", trailErr)
		}
	}

	return &Result{Token: token, Event: event}, nil
}

// classifyLoss disambiguates why a conditional consume matched no row.
// Legal proof depends on distinguishing "never delivered" from "delivered
// once already" from "link lapsed".
func (s *Service) classifyLoss(ctx context.Context, tokenValue string, now time.Time) error {
	token, err := s.tokens.Get(ctx, tokenValue)
	if err != nil {
		metrics.RedemptionsTotal.WithLabelValues("error").Inc()
		return apperrors.New(apperrors.ErrInternal, "redemption store failure", err)
	}
	switch {
	case token == nil:
		metrics.RedemptionsTotal.WithLabelValues("not_found").Inc()
		return apperrors.New(apperrors.ErrTokenNotFound, "redemption link is not recognised", nil)
	case token.State == model.TokenStateConsumed:
		metrics.RedemptionsTotal.WithLabelValues("already_consumed").Inc()
		return apperrors.New(apperrors.ErrTokenConsumed, "document was already collected with this link", nil)
	case token.Expired(now):
		metrics.RedemptionsTotal.WithLabelValues("expired").Inc()
		return apperrors.New(apperrors.ErrTokenExpired, "redemption link has expired", nil)
	default:
		// Issued, unexpired, yet the conditional write matched nothing:
		// a concurrent winner committed between our write and this read.
		metrics.RedemptionsTotal.WithLabelValues("already_consumed").Inc()
		return apperrors.New(apperrors.ErrTokenConsumed, "document was already collected with this link", nil)
	}
}

var _ fmt.Stringer = (*Result)(nil)

// String keeps the raw token value out of accidental log statements.
func (r *Result) String() string {
	return fmt.Sprintf("redeemed document %s at %s", r.Token.DocumentID, r.Token.ConsumedAt)
}
