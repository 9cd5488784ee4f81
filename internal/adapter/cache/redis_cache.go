package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/example/kitchen-order-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// setIfNewer writes the snapshot unless the stored version is greater.
// KEYS[1] order hash; ARGV: version (UpdatedAt in µs), JSON data, ttl in ms (0 keeps it).
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ver')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'ver', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// RedisOrderCache stores order snapshots as a hash {ver, data} under
// "<prefix>:order:<id>". Redis failures are logged and reported as misses so
// reads fall back to the store.
type RedisOrderCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisOrderCache(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *RedisOrderCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisOrderCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisOrderCache) key(id string) string {
	return fmt.Sprintf("%s:order:%s", c.prefix, id)
}

func (c *RedisOrderCache) Get(ctx context.Context, id string) (domain.Order, bool) {
	raw, err := c.client.HGet(ctx, c.key(id), "data").Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "cache get failed", "order_id", id, "error", err)
		}
		return domain.Order{}, false
	}
	var o domain.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		c.logger.WarnContext(ctx, "cache entry corrupted", "order_id", id, "error", err)
		return domain.Order{}, false
	}
	return o, true
}

// Set stores o unless the cached entry for the id is newer.
func (c *RedisOrderCache) Set(ctx context.Context, o domain.Order) {
	raw, err := json.Marshal(o)
	if err != nil {
		c.logger.WarnContext(ctx, "cache encode failed", "order_id", o.ID, "error", err)
		return
	}
	version := strconv.FormatInt(o.UpdatedAt.UnixMicro(), 10)
	ttl := strconv.FormatInt(c.ttl.Milliseconds(), 10)
	written, err := setIfNewer.Run(ctx, c.client, []string{c.key(o.ID)}, version, raw, ttl).Int()
	if err != nil {
		c.logger.WarnContext(ctx, "cache set failed", "order_id", o.ID, "error", err)
		return
	}
	if written == 0 {
		c.logger.DebugContext(ctx, "cache kept newer snapshot", "order_id", o.ID)
	}
}

var _ domain.OrderCache = (*RedisOrderCache)(nil)
