package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// renewScript pushes the lease expiry out while we still hold it.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

const lockPollInterval = 50 * time.Millisecond

type userMutex struct {
	sem  chan struct{}
	refs int
}

// UserLocker serializes work per user. An in-process mutex always guards the
// user; when a Redis client is configured a lease is taken as well so that
// several replicas do not interleave preference merges for the same user.
type UserLocker struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      *logrus.Logger

	mu    sync.Mutex
	locks map[int64]*userMutex
}

func NewUserLocker(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *UserLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &UserLocker{
		redisClient: redisClient,
		ttl:         ttl,
		logger:      logger,
		locks:       make(map[int64]*userMutex),
	}
}

// WithLock runs fn while holding the lock of userID.
func (l *UserLocker) WithLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error {
	release, err := l.acquireLocal(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to lock user %d: %w", userID, err)
	}
	defer release()

	if l.redisClient != nil {
		unlock, err := l.acquireLease(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to lock user %d: %w", userID, err)
		}
		defer unlock()
	}

	return fn(ctx)
}

func (l *UserLocker) acquireLocal(ctx context.Context, userID int64) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &userMutex{sem: make(chan struct{}, 1)}
		l.locks[userID] = m
	}
	m.refs++
	l.mu.Unlock()

	forget := func() {
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}

	select {
	case m.sem <- struct{}{}:
		return func() {
			<-m.sem
			forget()
		}, nil
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}
}

func lockKey(userID int64) string {
	return fmt.Sprintf("filmtaste:lock:user:%d", userID)
}

// acquireLease polls SET NX until it wins or ctx ends. Redis failures degrade
// to the local lock alone. The lease is renewed every ttl/3 until released.
func (l *UserLocker) acquireLease(ctx context.Context, userID int64) (func(), error) {
	key := lockKey(userID)
	token := uuid.NewString()

	for {
		ok, err := l.redisClient.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.WithError(err).WithField("user_id", userID).Warn("Failed to take Redis user lock, continuing with local lock")
			return func() {}, nil
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renewLease(key, token, userID, stop, done)

	return func() {
		close(stop)
		<-done
		// The caller's context may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.redisClient, []string{key}, token).Err(); err != nil {
			l.logger.WithError(err).WithField("user_id", userID).Warn("Failed to release Redis user lock")
		}
	}, nil
}

func (l *UserLocker) renewLease(key, token string, userID int64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := max(l.ttl/3, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			renewed, err := renewScript.Run(ctx, l.redisClient, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			switch {
			case err != nil:
				l.logger.WithError(err).WithField("user_id", userID).Warn("Failed to renew Redis user lock")
			case renewed == 0:
				l.logger.WithField("user_id", userID).Warn("Redis user lock expired before release")
				return
			}
		}
	}
}
