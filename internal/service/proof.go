package service

import (
	"context"

	"github.com/quickserve/servegate/internal/ledger"
	"github.com/quickserve/servegate/internal/model"
	"github.com/quickserve/servegate/internal/pkg/logger"
	"github.com/quickserve/servegate/internal/pkg/timeutil"
)

// ProofRecorder is the in-process proof-of-service generator. A full
// deployment renders a certificate document; here the proof is the ledger
// record itself, so generation amounts to summarizing the trail into a
// system event that auditors can anchor a certificate to.
type ProofRecorder struct {
	ledger *ledger.Service
}

func NewProofRecorder(ledgerSvc *ledger.Service) *ProofRecorder {
	return &ProofRecorder{ledger: ledgerSvc}
}

func (p *ProofRecorder) Generate(ctx context.Context, token *model.RedemptionToken, trail []*model.AuditEvent) error {
	metadata := map[string]any{
		"recipient":    token.Recipient,
		"trail_length": len(trail),
	}
	if token.ConsumedAt != nil {
		metadata["served_at_sast"] = timeutil.FormatSAST(*token.ConsumedAt)
	}

	event, err := p.ledger.Append(ctx, model.EventDraft{
		Action:    model.ActionProofGenerated,
		SubjectID: token.DocumentID,
		Metadata:  metadata,
	})
	if err != nil {
		return err
	}

	logger.Info("proof of service recorded",
		"document_id", token.DocumentID,
		"seq", event.Seq,
	)
	return nil
}
