package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/internal/core/ports"
	badgerdb "github.com/lockstep-labs/chand/internal/infrastructure/db/badger"
	pgdb "github.com/lockstep-labs/chand/internal/infrastructure/db/postgres"
	"github.com/lockstep-labs/chand/internal/infrastructure/db/sqldb"
	sqlitedb "github.com/lockstep-labs/chand/internal/infrastructure/db/sqlite"
	watermilldb "github.com/lockstep-labs/chand/internal/infrastructure/db/watermill"
)

//go:embed sqlite/migration/*
var migrations embed.FS

//go:embed postgres/migration/*
var pgMigration embed.FS

var (
	eventStoreTypes = map[string]func(...interface{}) (domain.EventRepository, error){
		"watermill": watermilldb.NewEventRepository,
	}
	channelStoreTypes = map[string]func(...interface{}) (domain.ChannelRepository, error){
		"badger":   badgerdb.NewChannelRepository,
		"sqlite":   sqldb.NewChannelRepository,
		"postgres": sqldb.NewChannelRepository,
	}
	swapStoreTypes = map[string]func(...interface{}) (domain.SwapRepository, error){
		"badger":   badgerdb.NewSwapRepository,
		"sqlite":   sqldb.NewSwapRepository,
		"postgres": sqldb.NewSwapRepository,
	}
	ledgerStoreTypes = map[string]func(...interface{}) (domain.LedgerRepository, error){
		"badger":   badgerdb.NewLedgerRepository,
		"sqlite":   sqldb.NewLedgerRepository,
		"postgres": sqldb.NewLedgerRepository,
	}
)

const (
	sqliteDbFile = "sqlite.db"
)

type ServiceConfig struct {
	EventStoreType string
	DataStoreType  string

	EventStoreConfig []interface{}
	DataStoreConfig  []interface{}
}

type service struct {
	eventStore   domain.EventRepository
	channelStore domain.ChannelRepository
	swapStore    domain.SwapRepository
	ledgerStore  domain.LedgerRepository

	runInTx func(ctx context.Context, fn func(ctx context.Context) error) error
	close   func()
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	eventStoreFactory, ok := eventStoreTypes[config.EventStoreType]
	if !ok {
		return nil, fmt.Errorf("event store type not supported")
	}
	channelStoreFactory, ok := channelStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}
	swapStoreFactory, ok := swapStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}
	ledgerStoreFactory, ok := ledgerStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	var (
		svc         = &service{}
		storeConfig interface{}
	)

	switch config.DataStoreType {
	case "badger":
		if len(config.DataStoreConfig) != 2 {
			return nil, fmt.Errorf("invalid data store config for badger")
		}

		baseDir, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}

		var logger badger.Logger
		if config.DataStoreConfig[1] != nil {
			if logger, ok = config.DataStoreConfig[1].(badger.Logger); !ok {
				return nil, fmt.Errorf("invalid badger logger")
			}
		}

		store, err := badgerdb.OpenStore(baseDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %s", err)
		}

		storeConfig = store
		svc.runInTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return badgerdb.RunInTx(ctx, store, fn)
		}
		svc.close = func() {
			//nolint:all
			store.Close()
		}

	case "postgres":
		if len(config.DataStoreConfig) != 2 {
			return nil, fmt.Errorf("invalid data store config for postgres")
		}

		dsn, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid DSN for postgres")
		}

		autoCreate, ok := config.DataStoreConfig[1].(bool)
		if !ok {
			return nil, fmt.Errorf("invalid autocreate flag for postgres")
		}

		db, err := pgdb.OpenDb(dsn, autoCreate)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres db: %s", err)
		}

		pgDriver, err := migratepg.WithInstance(db, &migratepg.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to init postgres migration driver: %s", err)
		}

		if err := runMigrations(pgMigration, "postgres/migration", "postgres", pgDriver); err != nil {
			return nil, err
		}

		sdb := sqldb.New(db, sqldb.Postgres, pgdb.IsConflictError)
		storeConfig = sdb
		svc.runInTx = sdb.RunInTx
		svc.close = sdb.Close

	case "sqlite":
		if len(config.DataStoreConfig) != 1 {
			return nil, fmt.Errorf("invalid data store config")
		}

		baseDir, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}

		dbFile := filepath.Join(baseDir, sqliteDbFile)
		db, err := sqlitedb.OpenDb(dbFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open db: %s", err)
		}

		driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to init driver: %s", err)
		}

		if err := runMigrations(migrations, "sqlite/migration", "chanddb", driver); err != nil {
			return nil, err
		}

		sdb := sqldb.New(db, sqldb.SQLite, sqlitedb.IsConflictError)
		storeConfig = sdb
		svc.runInTx = sdb.RunInTx
		svc.close = sdb.Close
	}

	var err error
	svc.channelStore, err = channelStoreFactory(storeConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel store: %s", err)
	}
	svc.swapStore, err = swapStoreFactory(storeConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open swap store: %s", err)
	}
	svc.ledgerStore, err = ledgerStoreFactory(storeConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store: %s", err)
	}

	svc.eventStore, err = eventStoreFactory(config.EventStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %s", err)
	}

	return svc, nil
}

func (s *service) Events() domain.EventRepository {
	return s.eventStore
}

func (s *service) Channels() domain.ChannelRepository {
	return s.channelStore
}

func (s *service) Swaps() domain.SwapRepository {
	return s.swapStore
}

func (s *service) Ledger() domain.LedgerRepository {
	return s.ledgerStore
}

func (s *service) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.runInTx(ctx, fn)
}

func (s *service) Close() {
	s.eventStore.Close()
	s.swapStore.Close()
	s.ledgerStore.Close()
	s.channelStore.Close()
	s.close()
}

func runMigrations(fsys embed.FS, dir, dbName string, driver database.Driver) error {
	source, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to embed migrations: %s", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dbName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %s", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %s", err)
	}
	return nil
}
