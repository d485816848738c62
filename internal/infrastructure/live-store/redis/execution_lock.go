package redislivestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	executionLockKey = "executionLock:owner"
	lockTTL          = 10 * time.Second
	refreshInterval  = lockTTL / 3
	pollInterval     = 20 * time.Millisecond
)

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// executionLock is a redis lease. The holder refreshes it while the lock is
// held so a crashed instance frees it after lockTTL.
type executionLock struct {
	rdb          *redis.Client
	numOfRetries int
	retryDelay   time.Duration
}

func newExecutionLock(rdb *redis.Client, numOfRetries int) *executionLock {
	if numOfRetries <= 0 {
		numOfRetries = 1
	}
	return &executionLock{
		rdb:          rdb,
		numOfRetries: numOfRetries,
		retryDelay:   10 * time.Millisecond,
	}
}

func (l *executionLock) Lock(ctx context.Context) (func(), error) {
	token := uuid.New().String()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, executionLockKey, token, lockTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to acquire execution lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go l.keepAlive(token, stop, wg)

	once := &sync.Once{}
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			l.release(token)
		})
	}, nil
}

func (l *executionLock) keepAlive(token string, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), refreshInterval)
			res, err := refreshScript.Run(
				ctx, l.rdb, []string{executionLockKey}, token, lockTTL.Milliseconds(),
			).Int()
			cancel()
			if err != nil {
				log.WithError(err).Warn("failed to refresh execution lock")
				continue
			}
			if res == 0 {
				log.Warn("execution lock lease lost")
				return
			}
		}
	}
}

func (l *executionLock) release(token string) {
	var err error
	for range l.numOfRetries {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = releaseScript.Run(ctx, l.rdb, []string{executionLockKey}, token).Err()
		cancel()
		if err == nil || errors.Is(err, redis.Nil) {
			return
		}
		time.Sleep(l.retryDelay)
	}
	log.WithError(err).Warn("failed to release execution lock, it will expire")
}
