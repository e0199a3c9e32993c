package pgdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const (
	driverName = "postgres"
	maxRetries = 5
)

// OpenDb opens the ledger db and makes sure it's reachable. With autoCreate
// a missing database is created first.
func OpenDb(dsn string, autoCreate bool) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres db: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil && autoCreate && isMissingDbError(err) {
		if err = createDB(ctx, dsn); err == nil {
			err = db.PingContext(ctx)
		}
	}
	if err != nil {
		//nolint:errcheck
		db.Close()
		return nil, fmt.Errorf("unable to establish connection with db: %v", err)
	}

	return db, nil
}

func isMissingDbError(err error) bool {
	var pqErr *pq.Error
	// 3D000: invalid_catalog_name
	return errors.As(err, &pqErr) && pqErr.Code == "3D000"
}

// createDB connects to the server's default db to create the one named in dsn.
func createDB(ctx context.Context, dsn string) error {
	dbName, rootDsn, err := splitDsn(dsn)
	if err != nil {
		return err
	}

	rootDB, err := sql.Open(driverName, rootDsn)
	if err != nil {
		return err
	}
	//nolint:errcheck
	defer rootDB.Close()

	log.Infof("postgres database %s does not exist, creating it", dbName)
	_, err = rootDB.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName))
	return err
}

// splitDsn returns the db name and a dsn pointing to the default db of the
// same server. Both url and key/value dsn formats are accepted.
func splitDsn(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		parsedURL, err := url.Parse(dsn)
		if err != nil {
			return "", "", err
		}
		dbName := strings.TrimPrefix(parsedURL.Path, "/")
		if dbName == "" {
			return "", "", fmt.Errorf("missing db name in dsn")
		}
		parsedURL.Path = ""
		return dbName, parsedURL.String(), nil
	}

	var dbName string
	params := make([]string, 0)
	for _, param := range strings.Fields(dsn) {
		if name, ok := strings.CutPrefix(param, "dbname="); ok {
			dbName = strings.Trim(name, "'")
			continue
		}
		params = append(params, param)
	}
	if dbName == "" {
		return "", "", fmt.Errorf("missing db name in dsn")
	}
	return dbName, strings.Join(params, " "), nil
}

func execTx(ctx context.Context, db *sql.DB, txBody func(*sql.Tx) error) error {
	var lastErr error
	for range maxRetries {
		tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := txBody(tx); err != nil {
			//nolint:all
			tx.Rollback()

			if isConflictError(err) {
				lastErr = err
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isConflictError(err) {
				lastErr = err
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}

	return lastErr
}

func isConflictError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 40001: serialization_failure, 40P01: deadlock_detected.
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "could not serialize access") ||
		strings.Contains(errMsg, "deadlock detected")
}
