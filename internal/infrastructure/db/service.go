package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
	"github.com/tokenmarket/marketd/internal/core/domain"
	"github.com/tokenmarket/marketd/internal/core/ports"
	badgerdb "github.com/tokenmarket/marketd/internal/infrastructure/db/badger"
	pgdb "github.com/tokenmarket/marketd/internal/infrastructure/db/postgres"
	sqlitedb "github.com/tokenmarket/marketd/internal/infrastructure/db/sqlite"
)

//go:embed sqlite/migration/*
var migrations embed.FS

//go:embed postgres/migration/*
var pgMigration embed.FS

var ledgerStoreTypes = map[string]func(...interface{}) (domain.LedgerRepository, error){
	"badger":   badgerdb.NewLedgerRepository,
	"sqlite":   sqlitedb.NewLedgerRepository,
	"postgres": pgdb.NewLedgerRepository,
}

const (
	sqliteDbFile = "sqlite.db"
)

type ServiceConfig struct {
	DataStoreType   string
	DataStoreConfig []interface{}
}

type service struct {
	ledgerStore domain.LedgerRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	ledgerStoreFactory, ok := ledgerStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	var ledgerStore domain.LedgerRepository
	var err error

	switch config.DataStoreType {
	case "badger":
		ledgerStore, err = ledgerStoreFactory(config.DataStoreConfig...)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger store: %s", err)
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

		src, err := iofs.New(pgMigration, "postgres/migration")
		if err != nil {
			return nil, fmt.Errorf("failed to embed postgres migrations: %s", err)
		}

		if err := runMigrations(src, "postgres", pgDriver); err != nil {
			return nil, err
		}

		ledgerStore, err = ledgerStoreFactory(db)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger store: %s", err)
		}

	case "sqlite":
		if len(config.DataStoreConfig) != 1 {
			return nil, fmt.Errorf("invalid data store config")
		}

		baseDir, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}

		db, err := openSqlite(baseDir)
		if err != nil {
			return nil, err
		}

		driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to init driver: %s", err)
		}

		src, err := iofs.New(migrations, "sqlite/migration")
		if err != nil {
			return nil, fmt.Errorf("failed to embed migrations: %s", err)
		}

		if err := runMigrations(src, "marketdb", driver); err != nil {
			return nil, err
		}

		ledgerStore, err = ledgerStoreFactory(db)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger store: %s", err)
		}
	}

	log.Debugf("opened %s ledger store", config.DataStoreType)

	return &service{ledgerStore}, nil
}

func (s *service) Ledger() domain.LedgerRepository {
	return s.ledgerStore
}

func (s *service) Close() {
	s.ledgerStore.Close()
}

func openSqlite(baseDir string) (*sql.DB, error) {
	dbFile := ":memory:"
	if len(baseDir) > 0 {
		dbFile = filepath.Join(baseDir, sqliteDbFile)
	}
	db, err := sqlitedb.OpenDb(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %s", err)
	}
	return db, nil
}

func runMigrations(src source.Driver, dbName string, driver database.Driver) error {
	m, err := migrate.NewWithInstance("iofs", src, dbName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %s", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %s", err)
	}
	return nil
}
