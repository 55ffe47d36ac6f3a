package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

// RedisLocker serializes audits across instances with a Redis lease
type RedisLocker struct {
	client  *redislock.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	retry   time.Duration
	logger  *zap.Logger
}

// RedisConfig tunes the lease
type RedisConfig struct {
	Prefix  string
	TTL     time.Duration
	Timeout time.Duration
	Retry   time.Duration
}

// NewRedisLocker wraps an existing go-redis client
func NewRedisLocker(rdb redis.UniversalClient, cfg RedisConfig, logger *zap.Logger) *RedisLocker {
	if cfg.Prefix == "" {
		cfg.Prefix = "audit-lock"
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 50 * time.Millisecond
	}
	return &RedisLocker{
		client:  redislock.New(rdb),
		prefix:  cfg.Prefix,
		ttl:     cfg.TTL,
		timeout: cfg.Timeout,
		retry:   cfg.Retry,
		logger:  logger,
	}
}

// Lock implements port.AuditLocker. The lease is refreshed every third of its
// TTL until released, and expires on its own if the holder dies.
func (l *RedisLocker) Lock(ctx context.Context, auditID int64) (func(), error) {
	key := fmt.Sprintf("%s:%d", l.prefix, auditID)

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	lease, err := l.client.Obtain(waitCtx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.retry),
	})
	switch {
	case err == nil:
	case errors.Is(err, redislock.ErrNotObtained), errors.Is(err, context.DeadlineExceeded):
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ctx.Err()
		}
		return nil, &entity.LockTimeoutError{AuditID: auditID, Waited: l.timeout}
	default:
		l.logger.Error("Failed to obtain audit lock", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("%w: obtain lock: %v", entity.ErrStorage, err)
	}

	stop := keepAlive(context.WithoutCancel(ctx), lease, l.ttl, l.ttl/3, key, l.logger)

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			// release must not depend on the caller's context, which may be done
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := lease.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.logger.Warn("Failed to release audit lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

// refresher is the part of *redislock.Lock the keepalive loop uses
type refresher interface {
	Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error
}

// keepAlive extends the lease every interval until stop is called. A refresh
// that fails because the lease is gone ends the loop.
func keepAlive(ctx context.Context, lease refresher, ttl, interval time.Duration, key string, logger *zap.Logger) (stop func()) {
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(ctx, interval)
				err := lease.Refresh(refreshCtx, ttl, nil)
				cancel()
				switch {
				case err == nil:
				case errors.Is(err, redislock.ErrNotObtained), errors.Is(err, redislock.ErrLockNotHeld):
					logger.Error("Audit lock lease lost", zap.String("key", key), zap.Error(err))
					return
				default:
					logger.Warn("Failed to refresh audit lock", zap.String("key", key), zap.Error(err))
				}
			}
		}
	}()

	return func() {
		close(done)
		<-exited
	}
}

var _ port.AuditLocker = (*RedisLocker)(nil)
