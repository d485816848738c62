package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/timshannon/badgerhold/v4"
)

const (
	storeDir   = "chand"
	maxRetries = 5
)

type txKey struct{}

// OpenStore opens the store shared by the channel, swap and ledger
// repositories. An empty base dir opens an in-memory store.
func OpenStore(baseDir string, logger badger.Logger) (*badgerhold.Store, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, storeDir)
	}
	return createDB(dir, logger)
}

// RunInTx runs fn in a read-write transaction. Repositories called with the
// context passed to fn join the transaction. A transaction already carried
// by ctx is reused.
func RunInTx(
	ctx context.Context, store *badgerhold.Store, fn func(ctx context.Context) error,
) error {
	if _, ok := ctx.Value(txKey{}).(*badger.Txn); ok {
		return fn(ctx)
	}

	var err error
	for attempts := 0; attempts <= maxRetries; attempts++ {
		err = store.Badger().Update(func(tx *badger.Txn) error {
			return fn(context.WithValue(ctx, txKey{}, tx))
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}
	return err
}

func createDB(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			for {
				<-ticker.C
				if err := db.Badger().RunValueLogGC(0.5); err != nil &&
					!errors.Is(err, badger.ErrNoRewrite) {
					continue
				}
			}
		}()
	}

	return db, nil
}

// storeFromConfig returns the shared store passed as first config value,
// or opens a new one from [baseDir, logger].
func storeFromConfig(config ...interface{}) (*badgerhold.Store, bool, error) {
	if len(config) == 1 {
		store, ok := config[0].(*badgerhold.Store)
		if !ok || store == nil {
			return nil, false, fmt.Errorf("invalid store")
		}
		return store, false, nil
	}
	if len(config) != 2 {
		return nil, false, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, false, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, false, fmt.Errorf("invalid logger")
		}
	}
	store, err := OpenStore(baseDir, logger)
	if err != nil {
		return nil, false, err
	}
	return store, true, nil
}

func txFromContext(ctx context.Context) *badger.Txn {
	tx, _ := ctx.Value(txKey{}).(*badger.Txn)
	return tx
}

// withRetry retries fn while it fails with a transaction conflict. Calls
// made inside a transaction are not retried, the transaction is.
func withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if txFromContext(ctx) != nil {
		return err
	}
	attempts := 1
	for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
		time.Sleep(100 * time.Millisecond)
		err = fn()
		attempts++
	}
	return err
}
