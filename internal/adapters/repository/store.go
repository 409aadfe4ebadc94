// Package repository persists the ledger and its derived leaderboard.
//
// Every backend is atomic per Save and checks the ledger's Revision against
// the stored one, so concurrent read-modify-write cycles cannot silently
// overwrite each other.
package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/ranking"
	"github.com/okian/paddle/pkg/metrics"
)

// Drivers.
const (
	DriverMemory   = "memory"
	DriverCSV      = "csv"
	DriverBolt     = "bolt"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Store provides durable access to the ledger.
type Store interface {
	// Load returns the stored ledger with Revision set. An empty store
	// yields an empty ledger at revision 0.
	Load(ctx context.Context) (*ledger.Ledger, error)

	// Save atomically replaces the stored ledger and leaderboard. It fails
	// with ErrConflict unless the stored revision equals l.Revision. On
	// success l.Revision is advanced to the new stored revision.
	Save(ctx context.Context, l *ledger.Ledger, board ranking.Board) error

	Close() error
}

// Open builds the store for driver.
func Open(ctx context.Context, driver string, opts ...Option) (Store, error) {
	o := newOptions(opts...)

	var (
		s   Store
		err error
	)
	switch driver {
	case DriverMemory:
		s = NewMemoryStore()
	case DriverCSV:
		s, err = NewCSVStore(o.path)
	case DriverBolt:
		var path string
		if path, err = filePath(o.path, "paddle.bolt"); err == nil {
			s, err = NewBoltStore(path)
		}
	case DriverSQLite:
		var path string
		if path, err = filePath(o.path, "paddle.db"); err == nil {
			s, err = NewSQLiteStore(ctx, path)
		}
	case DriverPostgres:
		s, err = NewPostgresStore(ctx, o.dsn)
	case DriverRedis:
		s, err = NewRedisStore(ctx, o.redisAddr, o.redisKey)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	return Instrument(driver, s), nil
}

// filePath treats a path with an extension as the file itself and anything
// else as a directory holding name.
func filePath(path, name string) (string, error) {
	if filepath.Ext(path) != "" {
		return path, os.MkdirAll(filepath.Dir(path), 0o755)
	}
	return filepath.Join(path, name), os.MkdirAll(path, 0o755)
}

// Instrument wraps s so every call is reported to pkg/metrics.
func Instrument(driver string, s Store) Store {
	return &instrumented{driver: driver, next: s}
}

type instrumented struct {
	driver string
	next   Store
}

func (s *instrumented) Load(ctx context.Context) (*ledger.Ledger, error) {
	start := time.Now()
	l, err := s.next.Load(ctx)
	metrics.RecordStoreLoad(s.driver, time.Since(start))
	if err != nil {
		metrics.RecordErrorByComponent("repository", "load")
	}
	return l, err
}

func (s *instrumented) Save(ctx context.Context, l *ledger.Ledger, board ranking.Board) error {
	start := time.Now()
	err := s.next.Save(ctx, l, board)
	metrics.RecordStoreSave(s.driver, time.Since(start))
	switch {
	case err == nil:
	case errors.Is(err, ErrConflict):
		metrics.RecordStoreConflict(s.driver)
	default:
		metrics.RecordErrorByComponent("repository", "save")
	}
	return err
}

func (s *instrumented) Close() error { return s.next.Close() }
