package inmemorylivestore

import (
	"context"

	"github.com/lockstep-labs/chand/internal/core/ports"
)

type liveStore struct {
	lock *executionLock
}

func NewLiveStore() ports.LiveStore {
	return &liveStore{lock: newExecutionLock()}
}

func (s *liveStore) ExecutionLock() ports.ExecutionLock {
	return s.lock
}

func (s *liveStore) Close() {}

// executionLock is a process-local mutex whose acquisition can be abandoned
// when ctx is done.
type executionLock struct {
	sem chan struct{}
}

func newExecutionLock() *executionLock {
	return &executionLock{sem: make(chan struct{}, 1)}
}

func (l *executionLock) Lock(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	released := make(chan struct{})
	return func() {
		select {
		case <-released:
			return
		default:
			close(released)
			<-l.sem
		}
	}, nil
}
