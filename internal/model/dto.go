package model

import "time"

// UploadDocumentRequest registers a document that the external store
// already holds. Bytes never pass through this service.
type UploadDocumentRequest struct {
	OriginalFilename string `json:"original_filename" binding:"required"`
	FileSize         int64  `json:"file_size" binding:"required,gt=0"`
	ContentType      string `json:"content_type"`
	ContentHash      string `json:"content_hash"`
	RecipientEmail   string `json:"recipient_email" binding:"required,email"`
	RecipientName    string `json:"recipient_name"`
	MatterReference  string `json:"matter_reference"`
	Description      string `json:"description"`
}

// IssueLinkResponse returns the opaque redemption link. The raw token is
// embedded in the URL only; it is never logged or stored in responses twice.
type IssueLinkResponse struct {
	DocumentID  string     `json:"document_id"`
	DownloadURL string     `json:"download_url"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// RedeemResponse is returned on a first successful redemption.
type RedeemResponse struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	RedeemedAt time.Time `json:"redeemed_at"`
	// ServedAtSAST is the legal display form of the redemption instant.
	ServedAtSAST string `json:"served_at_sast"`
}

// ExportEnvelope wraps an ordered ledger export for court submission.
type ExportEnvelope struct {
	ExportTimestamp time.Time     `json:"export_timestamp"`
	EntryCount      int           `json:"entry_count"`
	Entries         []*AuditEvent `json:"entries"`
}

// RecordFeeRequest records a service fee against a document.
type RecordFeeRequest struct {
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency"`
}
