package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/pkg/utils"
)

// RedisCache shares embeddings between processes through Redis. Keys are
// prefix + sha256(text); values are little-endian float32 arrays.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache connects to addr and verifies the connection with a PING.
// prefix should identify the embedding model so vectors of different models never mix.
func NewRedisCache(addr, prefix string, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl, logger: utils.OrNop(logger)}, nil
}

func (c *RedisCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Get returns the cached embedding; Redis errors are logged and treated as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis cache get failed", zap.Error(err))
		}
		return nil, false
	}
	vec, err := decodeVector(data)
	if err != nil {
		c.logger.Warn("redis cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return vec, true
}

// Set stores the embedding; failures are logged.
func (c *RedisCache) Set(ctx context.Context, key string, value []float32) {
	if err := c.rdb.Set(ctx, c.key(key), encodeVector(value), c.ttl).Err(); err != nil {
		c.logger.Warn("redis cache set failed", zap.Error(err))
	}
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector length %d", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
