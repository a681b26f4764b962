package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
	"github.com/akshay033333/medical-claims-pipeline/pkg/redis"
)

// Key prefixes namespacing the gateway's Redis entries.
const (
	dedupKeyPrefix   = "claims:dedup:"
	receiptKeyPrefix = "claims:receipt:"
)

// RedisDeduper implements Deduper on Redis: SET NX for the dedup key and a
// plain keyed entry for the cached receipt. The key TTL bounds the dedup
// horizon: a resubmission after the TTL is treated as new, and the claim
// log's idempotent insert still protects the original audit record.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper with the given key TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

// Remember marks a claim id as seen. Returns true on first sight, false on a
// replay.
func (d *RedisDeduper) Remember(ctx context.Context, claimID string) (bool, error) {
	fresh, err := d.client.SetNX(ctx, dedupKeyPrefix+claimID, 1, d.ttl)
	if err != nil {
		return false, fmt.Errorf("dedup setnx for %s: %w", claimID, err)
	}
	return fresh, nil
}

// Forget releases a claim id and its cached receipt.
func (d *RedisDeduper) Forget(ctx context.Context, claimID string) error {
	if err := d.client.Del(ctx, dedupKeyPrefix+claimID, receiptKeyPrefix+claimID); err != nil {
		return fmt.Errorf("dedup del for %s: %w", claimID, err)
	}
	return nil
}

// CacheReceipt stores the receipt under the claim's receipt key for the same
// TTL as the dedup key, so replays inside the dedup horizon can answer from
// Redis alone.
func (d *RedisDeduper) CacheReceipt(ctx context.Context, receipt *claims.SubmissionReceipt) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshaling receipt for %s: %w", receipt.ClaimID, err)
	}
	if err := d.client.Set(ctx, receiptKeyPrefix+receipt.ClaimID, data, d.ttl); err != nil {
		return fmt.Errorf("caching receipt for %s: %w", receipt.ClaimID, err)
	}
	return nil
}

// CachedReceipt returns the cached receipt for a claim id, or nil when the
// cache has no entry.
func (d *RedisDeduper) CachedReceipt(ctx context.Context, claimID string) (*claims.SubmissionReceipt, error) {
	raw, err := d.client.Get(ctx, receiptKeyPrefix+claimID)
	if redis.IsNilError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached receipt for %s: %w", claimID, err)
	}
	var receipt claims.SubmissionReceipt
	if err := json.Unmarshal([]byte(raw), &receipt); err != nil {
		return nil, fmt.Errorf("decoding cached receipt for %s: %w", claimID, err)
	}
	return &receipt, nil
}
