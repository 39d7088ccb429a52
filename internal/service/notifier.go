package service

import (
	"context"

	"github.com/quickserve/servegate/internal/model"
	"github.com/quickserve/servegate/internal/pkg/logger"
)

// LogNotifier stands in for the mail integration when none is configured.
// The link is written to the structured log so operators can hand it over
// manually; the recipient address is logged, the token-bearing URL is not.
type LogNotifier struct{}

func (LogNotifier) SendRedemptionLink(ctx context.Context, doc *model.Document, downloadURL string) error {
	logger.Info("redemption link ready for delivery",
		"document_id", doc.ID,
		"recipient", doc.RecipientEmail,
		"matter_reference", doc.MatterReference,
	)
	return nil
}
