package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/klokku/habitweek/internal/config"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// NewRedisClient connects to Redis and pings it. It returns nil without error when no host is configured.
func NewRedisClient(cfg config.Redis) (*redis.Client, error) {
	if cfg.Host == "" {
		log.Info("Redis host not configured, weekly summary cache disabled")
		return nil, nil
	}
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Pass,
		DB:           cfg.DB,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	log.Infof("Connected to Redis at %s", addr)

	return rdb, nil
}
