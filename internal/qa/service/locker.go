package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"go.uber.org/zap"
)

// ErrBusy another request is mutating the same entity
var ErrBusy = errors.New("entity is being modified by another request")

// Locker serialises mutations of one entity across service instances
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// RedisLocker distributed lock on redis
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisLocker(client redislock.RedisClient, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: redislock.New(client), ttl: ttl, logger: logger}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf("siteqa:lock:%s", key)
	lock, err := l.client.Obtain(ctx, lockKey, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 40),
	})
	if err == redislock.ErrNotObtained {
		return nil, ErrBusy
	} else if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", lockKey, err)
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil && err != redislock.ErrLockNotHeld {
			l.logger.Warn("release lock failed", zap.String("key", lockKey), zap.Error(err))
		}
	}, nil
}

// LocalLocker in-process lock used when redis is not configured
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
}

// localSlot one held-or-awaited key; dropped when refs reaches zero
type localSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*localSlot)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.drop(key, slot)
			})
		}, nil
	case <-ctx.Done():
		l.drop(key, slot)
		return nil, ErrBusy
	}
}

func (l *LocalLocker) drop(key string, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 && l.slots[key] == slot {
		delete(l.slots, key)
	}
}

// held number of keys currently held or awaited
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
