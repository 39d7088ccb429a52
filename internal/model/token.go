package model

import "time"

// Redemption token states. The only legal transition is Issued -> Consumed,
// exactly once, performed by a conditional update.
const (
	TokenStateIssued   = "issued"
	TokenStateConsumed = "consumed"
)

// RedemptionToken authorizes one recipient to claim one document once.
// Retained forever after consumption as a proof artifact.
type RedemptionToken struct {
	TokenValue        string     `json:"-" db:"token_value"` // never serialized into logs or responses
	DocumentID        string     `json:"document_id" db:"document_id"`
	Recipient         string     `json:"recipient" db:"recipient"`
	IssuedAt          time.Time  `json:"issued_at" db:"issued_at"`
	ExpiresAt         *time.Time `json:"expires_at" db:"expires_at"`
	State             string     `json:"state" db:"state"`
	ConsumedAt        *time.Time `json:"consumed_at" db:"consumed_at"`
	ConsumedByAddr    *string    `json:"consumed_by_addr" db:"consumed_by_addr"`
	ConsumedUserAgent *string    `json:"consumed_user_agent" db:"consumed_user_agent"`
}

// Expired reports whether the token's lifetime has lapsed at the given time.
// Tokens without an expiry never expire.
func (t *RedemptionToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
