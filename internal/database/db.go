package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

type PoolConfig struct {
	MaxOpenConns int
	PingTimeout  time.Duration
}

// DB is an open connection pool together with the target it was opened for.
type DB struct {
	*sql.DB
	Target Target
}

func (db *DB) Dialect() Dialect {
	return db.Target.Dialect
}

// Open resolves raw (a file path or URL), opens the pool and pings it. File
// engines are opened read-only and must already exist.
func Open(ctx context.Context, raw string, cfg PoolConfig) (*DB, error) {
	target, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}
	if target.FilePath != "" {
		info, err := os.Stat(target.FilePath)
		if err != nil {
			return nil, fmt.Errorf("open %s database %q: %w", target.Dialect, target.FilePath, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("open %s database %q: path is a directory", target.Dialect, target.FilePath)
		}
	}

	sqlDB, err := sql.Open(target.DriverName, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", target.Dialect, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if target.DSN == memoryPath || (target.Dialect == DialectDuckDB && target.FilePath == "") {
		// Every new connection to an in-memory database sees an empty database.
		sqlDB.SetMaxOpenConns(1)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s database: %w", target.Dialect, err)
	}

	return &DB{DB: sqlDB, Target: target}, nil
}
