package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/quickserve/servegate/internal/model"
)

// PostgresTokenRepo stores redemption tokens keyed by token value.
// ConsumeIfIssued relies on a single conditional UPDATE so the
// Issued->Consumed transition commits for at most one caller.
type PostgresTokenRepo struct {
	db *sqlx.DB
}

func NewPostgresTokenRepo(db *sqlx.DB) *PostgresTokenRepo {
	repo := &PostgresTokenRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresTokenRepo) Create(ctx context.Context, token *model.RedemptionToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO redemption_tokens (
			token_value, document_id, recipient, issued_at, expires_at, state
		) VALUES ($1,$2,$3,$4,$5,$6)
	`, token.TokenValue, token.DocumentID, token.Recipient,
		token.IssuedAt, token.ExpiresAt, token.State)
	return err
}

func (r *PostgresTokenRepo) Get(ctx context.Context, tokenValue string) (*model.RedemptionToken, error) {
	var token model.RedemptionToken
	err := r.db.GetContext(ctx, &token, `
		SELECT token_value, document_id, recipient, issued_at, expires_at,
		       state, consumed_at, consumed_by_addr, consumed_user_agent
		FROM redemption_tokens WHERE token_value = $1
	`, tokenValue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// ConsumeIfIssued is the compare-and-swap: the WHERE clause checks state
// and expiry in the same statement that flips the state, so concurrent
// callers serialize on the row lock and only the first one matches.
func (r *PostgresTokenRepo) ConsumeIfIssued(ctx context.Context, tokenValue string, now time.Time, clientAddr, userAgent string) (*model.RedemptionToken, bool, error) {
	if len(userAgent) > 500 {
		userAgent = userAgent[:500]
	}
	var token model.RedemptionToken
	err := r.db.GetContext(ctx, &token, `
		UPDATE redemption_tokens
		SET state = $2, consumed_at = $3, consumed_by_addr = $4, consumed_user_agent = $5
		WHERE token_value = $1
		  AND state = $6
		  AND (expires_at IS NULL OR expires_at > $3)
		RETURNING token_value, document_id, recipient, issued_at, expires_at,
		          state, consumed_at, consumed_by_addr, consumed_user_agent
	`, tokenValue, model.TokenStateConsumed, now, clientAddr, userAgent, model.TokenStateIssued)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &token, true, nil
}

func (r *PostgresTokenRepo) ensureSchema(ctx context.Context) error {
	// Tokens are never deleted; consumed rows are the proof artifacts.
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS redemption_tokens (
			token_value TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			recipient TEXT NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ,
			state TEXT NOT NULL DEFAULT 'issued',
			consumed_at TIMESTAMPTZ,
			consumed_by_addr TEXT,
			consumed_user_agent TEXT
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_redemption_tokens_document ON redemption_tokens(document_id)`)
	return nil
}
