// Package cache stores consolidated identity views in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"reconciler/internal/contact/models"
	id "reconciler/pkg/domain"
)

const (
	keyPrefix  = "identity:view:"
	defaultTTL = 5 * time.Minute
)

// viewRecord is the cached JSON form of an IdentityView.
type viewRecord struct {
	PrimaryID    int64    `json:"primaryId"`
	Emails       []string `json:"emails"`
	Phones       []string `json:"phoneNumbers"`
	SecondaryIDs []int64  `json:"secondaryIds"`
}

// RedisViewCache implements ports.ViewCache on a Redis client.
type RedisViewCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisViewCache creates a cache whose entries expire after ttl. A zero
// ttl selects the default.
func NewRedisViewCache(client redis.UniversalClient, ttl time.Duration) *RedisViewCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisViewCache{client: client, ttl: ttl}
}

func viewKey(primaryID id.ContactID) string {
	return keyPrefix + primaryID.String()
}

func (c *RedisViewCache) Get(ctx context.Context, primaryID id.ContactID) (*models.IdentityView, bool, error) {
	raw, err := c.client.Get(ctx, viewKey(primaryID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached view: %w", err)
	}
	var rec viewRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("decode cached view: %w", err)
	}
	if rec.PrimaryID != primaryID.Int64() {
		return nil, false, nil
	}
	view := &models.IdentityView{
		PrimaryID:    id.ContactID(rec.PrimaryID),
		Emails:       nonNil(rec.Emails),
		Phones:       nonNil(rec.Phones),
		SecondaryIDs: make([]id.ContactID, len(rec.SecondaryIDs)),
	}
	for i, sid := range rec.SecondaryIDs {
		view.SecondaryIDs[i] = id.ContactID(sid)
	}
	return view, true, nil
}

func (c *RedisViewCache) Put(ctx context.Context, view *models.IdentityView) error {
	rec := viewRecord{
		PrimaryID:    view.PrimaryID.Int64(),
		Emails:       view.Emails,
		Phones:       view.Phones,
		SecondaryIDs: make([]int64, len(view.SecondaryIDs)),
	}
	for i, sid := range view.SecondaryIDs {
		rec.SecondaryIDs[i] = sid.Int64()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode view: %w", err)
	}
	if err := c.client.Set(ctx, viewKey(view.PrimaryID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache view: %w", err)
	}
	return nil
}

func (c *RedisViewCache) Invalidate(ctx context.Context, primaryIDs ...id.ContactID) error {
	if len(primaryIDs) == 0 {
		return nil
	}
	keys := make([]string, len(primaryIDs))
	for i, pid := range primaryIDs {
		keys[i] = viewKey(pid)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate views: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *RedisViewCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
