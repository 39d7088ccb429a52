package repository

import (
	"context"
	"encoding/json"

	"github.com/quickserve/servegate/internal/model"
)

// RedisLedgerMirror keeps a capped copy of recent ledger events in a Redis
// list for operational dashboards. It is a convenience view only; the
// Postgres chain remains the sole authority and verification never reads
// from here.
type RedisLedgerMirror struct {
	client  *RedisClient
	listKey string
	listMax int
}

func NewRedisLedgerMirror(client *RedisClient, listKey string, listMax int) *RedisLedgerMirror {
	if listKey == "" {
		listKey = "ledger_events"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisLedgerMirror{client: client, listKey: listKey, listMax: listMax}
}

func (m *RedisLedgerMirror) Publish(ctx context.Context, event *model.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	pipe := m.client.Client.Pipeline()
	pipe.LPush(ctx, m.listKey, payload)
	pipe.LTrim(ctx, m.listKey, 0, int64(m.listMax-1))
	_, err = pipe.Exec(ctx)
	return err
}
