package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/quickserve/servegate/internal/model"
)

// PostgresEventRepo stores ledger events insert-only, ordered and range-
// scannable by sequence number. The primary key on seq is the second line
// of defence behind the ledger service's tail mutex: a lost race surfaces
// as a unique violation instead of a duplicated sequence.
type PostgresEventRepo struct {
	db *sqlx.DB
}

func NewPostgresEventRepo(db *sqlx.DB) *PostgresEventRepo {
	repo := &PostgresEventRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresEventRepo) Insert(ctx context.Context, event *model.AuditEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			seq, created_at, actor_id, action, subject_id,
			client_addr, user_agent, metadata_json, prev_hash, this_hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, event.Seq, event.CreatedAt, event.ActorID, event.Action, event.SubjectID,
		event.ClientAddr, event.UserAgent, event.MetadataJSON, event.PrevHash, event.ThisHash)
	return err
}

func (r *PostgresEventRepo) Tail(ctx context.Context) (*model.AuditEvent, error) {
	var event model.AuditEvent
	err := r.db.GetContext(ctx, &event, `
		SELECT seq, created_at, actor_id, action, subject_id,
		       client_addr, user_agent, metadata_json, prev_hash, this_hash
		FROM audit_events ORDER BY seq DESC LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *PostgresEventRepo) Range(ctx context.Context, from, to uint64) ([]*model.AuditEvent, error) {
	query := `
		SELECT seq, created_at, actor_id, action, subject_id,
		       client_addr, user_agent, metadata_json, prev_hash, this_hash
		FROM audit_events
		WHERE ($1 = 0 OR seq >= $1) AND ($2 = 0 OR seq <= $2)
		ORDER BY seq ASC
	`
	events := []*model.AuditEvent{}
	if err := r.db.SelectContext(ctx, &events, query, from, to); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *PostgresEventRepo) BySubject(ctx context.Context, subjectID string, limit int) ([]*model.AuditEvent, error) {
	events := []*model.AuditEvent{}
	err := r.db.SelectContext(ctx, &events, `
		SELECT seq, created_at, actor_id, action, subject_id,
		       client_addr, user_agent, metadata_json, prev_hash, this_hash
		FROM audit_events WHERE subject_id = $1
		ORDER BY seq ASC LIMIT $2
	`, subjectID, limit)
	return events, err
}

func (r *PostgresEventRepo) ByActor(ctx context.Context, actorID string, limit int) ([]*model.AuditEvent, error) {
	events := []*model.AuditEvent{}
	err := r.db.SelectContext(ctx, &events, `
		SELECT seq, created_at, actor_id, action, subject_id,
		       client_addr, user_agent, metadata_json, prev_hash, this_hash
		FROM audit_events WHERE actor_id = $1
		ORDER BY seq DESC LIMIT $2
	`, actorID, limit)
	return events, err
}

func (r *PostgresEventRepo) ensureSchema(ctx context.Context) error {
	// No UPDATE or DELETE path exists anywhere in this repo: the table is
	// append-only by construction and retained indefinitely.
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			seq BIGINT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			actor_id TEXT,
			action TEXT NOT NULL,
			subject_id TEXT NOT NULL DEFAULT '',
			client_addr TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			metadata_json TEXT NOT NULL DEFAULT '',
			prev_hash CHAR(64) NOT NULL,
			this_hash CHAR(64) NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_events_subject ON audit_events(subject_id, seq)`)
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor_id, seq DESC)`)
	return nil
}
