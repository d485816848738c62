package redislivestore

import (
	"github.com/lockstep-labs/chand/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

type liveStore struct {
	rdb  *redis.Client
	lock *executionLock
}

// NewLiveStore returns a live store backed by redis, so that several chand
// instances sharing the same database serialize their operations.
func NewLiveStore(rdb *redis.Client, numOfRetries int) ports.LiveStore {
	return &liveStore{
		rdb:  rdb,
		lock: newExecutionLock(rdb, numOfRetries),
	}
}

func (s *liveStore) ExecutionLock() ports.ExecutionLock {
	return s.lock
}

func (s *liveStore) Close() {
	//nolint:errcheck
	s.rdb.Close()
}
