package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// GenesisHash seeds the chain: the first event's PrevHash is this constant
// so every stored row carries a well-formed digest.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Standard audit action tags.
const (
	ActionUserRegistered    = "user.registered"
	ActionLoginFailed       = "login.failed"
	ActionDocumentUploaded  = "document.uploaded"
	ActionDocumentServed    = "document.served"
	ActionDocumentDownload  = "document.downloaded"
	ActionLinkIssued        = "link.issued"
	ActionRedeemRejected    = "redeem.rejected"
	ActionServiceFee        = "service.fee_recorded"
	ActionProofGenerated    = "system.proof_of_service_generated"
	ActionNotificationSent  = "notification.sent"
)

// AuditEvent is one immutable entry in the hash-chained ledger.
//
// Each event's ThisHash covers all of its own fields plus the previous
// event's ThisHash, so any retroactive edit anywhere in the chain is
// detectable. Events are created by the ledger's Append only and never
// mutated or deleted.
type AuditEvent struct {
	Seq          uint64    `json:"seq" db:"seq"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	ActorID      *string   `json:"actor_id" db:"actor_id"` // nil for anonymous actions
	Action       string    `json:"action" db:"action"`
	SubjectID    string    `json:"subject_id" db:"subject_id"`
	ClientAddr   string    `json:"client_addr" db:"client_addr"`
	UserAgent    string    `json:"user_agent" db:"user_agent"`
	MetadataJSON string    `json:"metadata_json" db:"metadata_json"`
	PrevHash     string    `json:"prev_hash" db:"prev_hash"`
	ThisHash     string    `json:"this_hash" db:"this_hash"`
}

// EventDraft carries the caller-supplied fields of an event. Seq, timestamp
// and the hashes are assigned by the ledger, never by callers.
type EventDraft struct {
	ActorID    *string
	Action     string
	SubjectID  string
	ClientAddr string
	UserAgent  string
	Metadata   map[string]any
}

// ComputeHash returns the SHA-256 digest of the event's canonical encoding.
// The encoding is JSON with sorted keys and compact separators, which Go's
// encoder produces for map values, so the digest is reproducible from the
// stored columns alone.
func (e *AuditEvent) ComputeHash() string {
	canonical := map[string]any{
		"seq":           e.Seq,
		"created_at":    e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"actor_id":      e.ActorID,
		"action":        e.Action,
		"subject_id":    e.SubjectID,
		"client_addr":   e.ClientAddr,
		"user_agent":    e.UserAgent,
		"metadata_json": e.MetadataJSON,
		"prev_hash":     e.PrevHash,
	}
	raw, _ := json.Marshal(canonical)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// VerifyHash recomputes the digest and compares it with the stored one.
func (e *AuditEvent) VerifyHash() bool {
	return e.ComputeHash() == e.ThisHash
}

// Metadata decodes MetadataJSON, returning nil when absent or malformed.
func (e *AuditEvent) Metadata() map[string]any {
	if e.MetadataJSON == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(e.MetadataJSON), &m); err != nil {
		return nil
	}
	return m
}

// IntegrityResult reports the outcome of a chain verification pass.
type IntegrityResult struct {
	Valid           bool    `json:"valid"`
	EntriesChecked  int     `json:"entries_checked"`
	FirstInvalidSeq *uint64 `json:"first_invalid_seq"`
	Error           string  `json:"error,omitempty"`
}
