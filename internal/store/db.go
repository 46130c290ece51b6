// Package store is the columnar event store. Reads are parameterized SQL
// submitted through Select, writes are bulk appends.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type DB struct {
	db  *gorm.DB
	log *slog.Logger
}

func Open(path string, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening events database %w", err)
	}
	x, err := db.DB()
	if err != nil {
		return nil, err
	}
	if inMemory(path) {
		// every connection to an in memory database is a new database.
		x.SetMaxOpenConns(1)
	} else {
		db.Exec("PRAGMA journal_mode=WAL")
		db.Exec("PRAGMA busy_timeout=5000")
	}
	err = db.AutoMigrate(models()...)
	if err != nil {
		x.Close()
		return nil, fmt.Errorf("migrating events database %w", err)
	}
	return &DB{db: db, log: log.With("component", "store")}, nil
}

func inMemory(path string) bool {
	return strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory")
}

func (d *DB) Close() error {
	x, err := d.db.DB()
	if err != nil {
		return err
	}
	return x.Close()
}

// Select runs a read only query and scans the result into dest, which must be
// a pointer to a slice of structs or a pointer to a struct. op names the
// operation for logs and metrics. Failures are logged here once and returned
// as errs.Upstream without query text or bound values.
func (d *DB) Select(ctx context.Context, op string, dest any, query string, args ...any) error {
	start := time.Now()
	defer metrics.Since(op, start)
	err := d.db.WithContext(ctx).Raw(query, args...).Scan(dest).Error
	if err != nil {
		metrics.StoreErrors.WithLabelValues(op).Inc()
		d.log.Error("executing query", "op", op, "query", query, "err", err)
		return errs.Upstream.Wrap(err, op)
	}
	return nil
}

// Insert writes rows synchronously. rows must be a slice of one of the table
// models.
func (d *DB) Insert(ctx context.Context, rows any) error {
	err := d.db.WithContext(ctx).CreateInBatches(rows, 256).Error
	if err != nil {
		metrics.StoreErrors.WithLabelValues("insert").Inc()
		d.log.Error("appending rows", "err", err)
		return errs.Upstream.Wrap(err, "insert")
	}
	return nil
}

// UpsertErrorStatus sets status for all eids of project pid in one statement.
func (d *DB) UpsertErrorStatus(ctx context.Context, pid string, eids []string, status string, now time.Time) error {
	rows := make([]ErrorStatus, len(eids))
	for i := range eids {
		rows[i] = ErrorStatus{ProjectID: pid, EID: eids[i], Status: status, Updated: now.Unix()}
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pid"}, {Name: "eid"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated"}),
	}).Create(&rows).Error
	if err != nil {
		metrics.StoreErrors.WithLabelValues("error_status").Inc()
		d.log.Error("updating error status", "pid", pid, "err", err)
		return errs.Upstream.Wrap(err, "error_status")
	}
	return nil
}
