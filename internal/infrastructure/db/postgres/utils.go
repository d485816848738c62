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

const driverName = "postgres"

// OpenDb opens a connection with the DB.
// If the connection fails because the database doesn't exist and autoCreate
// is set, OpenDb creates the database named in the DSN.
func OpenDb(dsn string, autoCreate bool) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres db: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := connectDB(ctx, db, dsn, autoCreate); err != nil {
		return nil, fmt.Errorf("unable to establish connection with db: %v", err)
	}

	return db, nil
}

// connectDB pings the db since sql.Open only validates its arguments.
func connectDB(ctx context.Context, db *sql.DB, dsn string, autoCreate bool) error {
	if err := db.PingContext(ctx); err != nil {
		var dbErr *pq.Error
		// 3D000: invalid_catalog_name, the db doesn't exist.
		if errors.As(err, &dbErr) && dbErr.Code == "3D000" && autoCreate {
			log.Info("postgres database does not exist, creating it...")

			if err = createDB(ctx, dsn); err != nil {
				return err
			}

			return connectDB(ctx, db, dsn, false)
		}

		return err
	}

	return nil
}

// createDB creates the db named in the URL formatted dsn.
func createDB(ctx context.Context, dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return fmt.Errorf("cannot auto-create database unless the DSN uses URL format")
	}

	parsedURL, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsedURL.Path, "/")
	if dbName == "" {
		return fmt.Errorf("cannot auto-create when database name is empty")
	}
	parsedURL.Path = ""

	rootDB, err := sql.Open(driverName, parsedURL.String())
	if err != nil {
		return err
	}
	// nolint
	defer rootDB.Close()

	query := "CREATE DATABASE " + pq.QuoteIdentifier(dbName)
	log.Infof("executing query '%s'", query)
	if _, err := rootDB.ExecContext(ctx, query); err != nil {
		return err
	}

	return nil
}

// IsConflictError reports whether err is a serialization failure that can
// be solved by retrying the transaction.
func IsConflictError(err error) bool {
	var dbErr *pq.Error
	if errors.As(err, &dbErr) {
		// 40001: serialization_failure, 40P01: deadlock_detected.
		return dbErr.Code == "40001" || dbErr.Code == "40P01"
	}
	return false
}
