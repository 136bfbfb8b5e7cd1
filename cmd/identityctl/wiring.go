package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/adapters/zerologger"
	"github.com/goliatone/go-identity/config"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const pingTimeout = 5 * time.Second

func openDB(ctx context.Context, cfg config.Database) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch strings.ToLower(cfg.Driver) {
	case "postgres", "pgx":
		if sqldb, err = sql.Open("pgx", cfg.DSN); err != nil {
			return nil, err
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	case "sqlite", "":
		if sqldb, err = sql.Open(sqliteshim.ShimName, cfg.DSN); err != nil {
			return nil, err
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}

	return db, nil
}

func newLogger(cfg config.Log, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// newEngine builds an engine on the bun store with the configured hasher.
// Callers add the denylist, sinks and verifier they need.
func newEngine(cfg *config.Config, db *bun.DB, log zerolog.Logger) (*identity.Engine, identity.RepositoryManager, error) {
	idCfg, err := cfg.Identity()
	if err != nil {
		return nil, nil, err
	}

	logger := zerologger.New(log)
	repo := identity.NewRepositoryManager(db)
	repo.MustValidate()
	repo.Users().WithLogger(logger)

	engine := identity.NewEngine(idCfg, repo.Users()).
		WithHasher(cfg.NewHasher()).
		WithLogger(logger)

	return engine, repo, nil
}
