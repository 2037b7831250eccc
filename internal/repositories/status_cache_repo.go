package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	statusKeyPrefix  = "status:"
	DefaultStatusTTL = 24 * time.Hour
)

// setIfNewer writes the record only when no cached record exists or the
// cached one has a lower version, so a slow writer cannot roll the cache
// back.
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, decoded = pcall(cjson.decode, cur)
  if ok and decoded['version'] and tonumber(decoded['version']) > tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// RedisStatusCacheRepository caches the current StatusRecord per owner
// for friend status reads.
type RedisStatusCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStatusCacheRepository(client *redis.Client, ttl time.Duration) *RedisStatusCacheRepository {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &RedisStatusCacheRepository{client: client, ttl: ttl}
}

func (r *RedisStatusCacheRepository) Set(ctx context.Context, record *models.StatusRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	key := statusKey(record.OwnerID)
	err = setIfNewer.Run(ctx, r.client, []string{key}, data, record.Version, r.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return nil
}

func (r *RedisStatusCacheRepository) Get(ctx context.Context, ownerID uuid.UUID) (*models.StatusRecord, error) {
	data, err := r.client.Get(ctx, statusKey(ownerID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	var record models.StatusRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &record, nil
}

// GetBulk reads many owners in one round trip. Owners without a cached
// record are absent from the result.
func (r *RedisStatusCacheRepository) GetBulk(ctx context.Context, ownerIDs []uuid.UUID) (map[uuid.UUID]*models.StatusRecord, error) {
	records := make(map[uuid.UUID]*models.StatusRecord)
	if len(ownerIDs) == 0 {
		return records, nil
	}

	keys := make([]string, len(ownerIDs))
	for i, id := range ownerIDs {
		keys[i] = statusKey(id)
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bulk status: %w", err)
	}

	for i, result := range results {
		data, ok := result.(string)
		if !ok {
			continue
		}
		var record models.StatusRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			continue
		}
		records[ownerIDs[i]] = &record
	}
	return records, nil
}

func statusKey(ownerID uuid.UUID) string {
	return statusKeyPrefix + ownerID.String()
}
