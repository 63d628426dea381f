package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// ClientConfig is the persistence configuration the client constructors
// need; GetServer doubles as the driver DSN.
type ClientConfig interface {
	GetDebug() bool
	GetDriver() string
	GetServer() string
	GetPingTimeout() time.Duration
	GetOtelIdentifier() string
}

// NewPostgresClient opens a postgres connection on cfg.GetServer() and wraps
// it in a persistence client with the pg dialect.
func NewPostgresClient(cfg ClientConfig) (*persistence.Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.GetServer()) == "" {
		return nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}
	sqlDB, err := sql.Open("postgres", cfg.GetServer())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres connection: %w", err)
	}
	client, err := persistence.New(cfg, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return client, nil
}

// NewSQLiteClient opens a sqlite connection on cfg.GetServer() and wraps it
// in a persistence client with the sqlite dialect. Shared-cache in-memory
// databases are pinned to a single connection so every session sees the same
// schema.
func NewSQLiteClient(cfg ClientConfig) (*persistence.Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.GetServer()) == "" {
		return nil, fmt.Errorf("sqlstore: sqlite dsn is required")
	}
	sqlDB, err := sql.Open("sqlite3", cfg.GetServer())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open sqlite connection: %w", err)
	}
	if strings.Contains(cfg.GetServer(), "mode=memory") {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return client, nil
}
