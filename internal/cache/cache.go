// Package cache provides Redis-backed caching with graceful degradation.
// When Redis is down the service stays up and callers fall back to live
// queries.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"hyperliquid-alpha-bot/config"
	"hyperliquid-alpha-bot/internal/logging"
)

var ErrCacheUnavailable = errors.New("cache unavailable")

// Key layout
const (
	keyMid            = "hl:mid:%s"                 // coin -> mid price
	keyCooldown       = "tg:cooldown:%d:%s"         // chat id, command
	keyDailyCounter   = "counter:%s:%s"             // name, YYYY-MM-DD
	midTTL            = 10 * time.Second
	dailyCounterTTL   = 48 * time.Hour
)

// Service wraps a Redis client. Every method degrades to
// ErrCacheUnavailable instead of failing the caller hard.
type Service struct {
	client  *redis.Client
	logger  *logging.Logger
	enabled bool

	mu      sync.RWMutex
	healthy bool
}

// NewService connects to Redis. A failed initial ping returns the
// service in degraded mode rather than an error.
func NewService(cfg config.RedisConfig, logger *logging.Logger) *Service {
	s := &Service{
		logger:  logger.WithComponent("cache"),
		enabled: cfg.Enabled,
	}
	if !cfg.Enabled {
		return s
	}

	s.client = redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn("redis unavailable, running degraded", "error", err.Error())
		return s
	}

	s.healthy = true
	s.logger.Info("redis connected", "address", cfg.Address)
	return s
}

// Healthy reports whether Redis is usable.
func (s *Service) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled && s.healthy
}

func (s *Service) markHealth(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasHealthy := s.healthy
	s.healthy = err == nil || err == redis.Nil
	if wasHealthy && !s.healthy {
		s.logger.Warn("redis went unhealthy", "error", err.Error())
	} else if !wasHealthy && s.healthy {
		s.logger.Info("redis recovered")
	}
}

// SetMid caches a mid price briefly so status commands do not hit the
// exchange on every request.
func (s *Service) SetMid(ctx context.Context, coin string, price float64) {
	if !s.Healthy() {
		return
	}
	key := fmt.Sprintf(keyMid, coin)
	err := s.client.Set(ctx, key, strconv.FormatFloat(price, 'f', -1, 64), midTTL).Err()
	s.markHealth(err)
}

// GetMid returns a cached mid price.
func (s *Service) GetMid(ctx context.Context, coin string) (float64, error) {
	if !s.Healthy() {
		return 0, ErrCacheUnavailable
	}
	val, err := s.client.Get(ctx, fmt.Sprintf(keyMid, coin)).Result()
	s.markHealth(err)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(val, 64)
}

// TryCooldown atomically claims a per-chat command cooldown slot.
// Returns false while a previous claim is still active. On cache
// failure it allows the command, rate limiting is best effort.
func (s *Service) TryCooldown(ctx context.Context, chatID int64, command string, d time.Duration) bool {
	if !s.Healthy() || d <= 0 {
		return true
	}
	key := fmt.Sprintf(keyCooldown, chatID, command)
	ok, err := s.client.SetNX(ctx, key, "1", d).Result()
	s.markHealth(err)
	if err != nil {
		return true
	}
	return ok
}

// IncrDailyCounter bumps a per-day counter and returns the new value.
// Used for airdrop interaction quotas.
func (s *Service) IncrDailyCounter(ctx context.Context, name string, day string) (int64, error) {
	if !s.Healthy() {
		return 0, ErrCacheUnavailable
	}
	key := fmt.Sprintf(keyDailyCounter, name, day)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, dailyCounterTTL)
	_, err := pipe.Exec(ctx)
	s.markHealth(err)
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// DailyCounter reads a per-day counter without bumping it.
func (s *Service) DailyCounter(ctx context.Context, name string, day string) (int64, error) {
	if !s.Healthy() {
		return 0, ErrCacheUnavailable
	}
	val, err := s.client.Get(ctx, fmt.Sprintf(keyDailyCounter, name, day)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	s.markHealth(err)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// Close releases the Redis connection.
func (s *Service) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
