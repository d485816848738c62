package ports

import "context"

type LiveStore interface {
	ExecutionLock() ExecutionLock
	Close()
}

// ExecutionLock serializes state-mutating operations. Lock blocks until the
// lock is held or ctx is done and returns the func that releases it.
type ExecutionLock interface {
	Lock(ctx context.Context) (func(), error)
}
