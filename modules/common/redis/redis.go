package redis

import (
	"context"
	"crypto/tls"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"bildoro-server/modules/common/config"
)

// Connect - Redis 연결 생성
func Connect(cfg *config.Config) *redis.Client {
	log.Printf("🔌 Connecting to Redis: %s", cfg.GetRedisAddr())

	var tlsConfig *tls.Config
	if cfg.RedisUseTLS {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, // Render.com Redis용
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		TLSConfig:    tlsConfig,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("❌ Redis ping failed: %v", err)
		return nil
	}

	return rdb
}

// Deduper marks webhook event IDs as seen. Stripe delivers at least once, so
// replayed events must be dropped before they touch the ledger.
type Deduper interface {
	MarkOnce(ctx context.Context, key string) (first bool, err error)
}

// EventDeduper - Redis SETNX 기반 fast path. DB의 unique 제약이 내구성 있는
// 2차 가드이고, 이건 재시작 전까지의 빠른 차단.
type EventDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewEventDeduper(rdb *redis.Client) *EventDeduper {
	return &EventDeduper{
		rdb: rdb,
		ttl: 72 * time.Hour, // Stripe retries span up to three days
	}
}

func (d *EventDeduper) MarkOnce(ctx context.Context, key string) (bool, error) {
	return d.rdb.SetNX(ctx, "webhook:seen:"+key, "1", d.ttl).Result()
}
