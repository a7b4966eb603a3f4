package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/pkg/storage"
)

// SyncTarget receives signed envelopes for propagation to the external store.
type SyncTarget interface {
	Name() string
	Push(ctx context.Context, envelope dto.SyncEnvelope) error
}

// RedisSyncTarget pushes envelopes onto a Redis list consumed by the cloud bridge.
type RedisSyncTarget struct {
	client *redis.Client
	key    string
}

// NewRedisSyncTarget constructs a Redis list target.
func NewRedisSyncTarget(client *redis.Client, key string) *RedisSyncTarget {
	if key == "" {
		key = "attendance:sync"
	}
	return &RedisSyncTarget{client: client, key: key}
}

// Name identifies the target in status output.
func (t *RedisSyncTarget) Name() string { return "redis" }

// Push LPUSHes the encoded envelope.
func (t *RedisSyncTarget) Push(ctx context.Context, envelope dto.SyncEnvelope) error {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode sync envelope: %w", err)
	}
	if err := t.client.LPush(ctx, t.key, raw).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", t.key, err)
	}
	return nil
}

// FileSyncTarget appends envelopes to a daily JSON lines outbox on local disk.
type FileSyncTarget struct {
	store *storage.LocalStorage
	now   func() time.Time
}

// NewFileSyncTarget constructs an outbox file target.
func NewFileSyncTarget(store *storage.LocalStorage) *FileSyncTarget {
	return &FileSyncTarget{store: store, now: time.Now}
}

// Name identifies the target in status output.
func (t *FileSyncTarget) Name() string { return "file" }

// Push appends the encoded envelope to today's outbox file.
func (t *FileSyncTarget) Push(ctx context.Context, envelope dto.SyncEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode sync envelope: %w", err)
	}
	return t.store.AppendLine(OutboxFilename(t.now()), raw)
}

// OutboxFilename names the outbox file for the given day.
func OutboxFilename(at time.Time) string {
	return "sync-" + at.UTC().Format("20060102") + ".jsonl"
}
