// Package bootstrap brings up the infrastructure a bot needs before its
// handlers are wired: logger, then optionally Postgres and Redis.
package bootstrap

import (
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/artbot/core/config"
	coredatabase "github.com/m3rciful/artbot/core/database"
	"github.com/m3rciful/artbot/core/kv"
	"github.com/m3rciful/artbot/core/logger"
)

// Options control the generic bootstrap pipeline. A nil Database or Redis
// skips that backend.
type Options struct {
	Config   *coreconfig.Config
	Database *coredatabase.Config
	Redis    *kv.Config

	LoggerInit   func(*coreconfig.Config) error
	Connect      func(coredatabase.Config) (*sqlx.DB, error)
	Migrate      func(coredatabase.Config) error
	ConnectRedis func(kv.Config) (*redis.Client, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB    *sqlx.DB
	Redis *redis.Client
}

// Close releases every opened backend.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	return errors.Join(errs...)
}

// Run initializes the logger, connects to the database, applies migrations
// and connects Redis. Anything opened is closed again on failure.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}
	if opts.Database != nil {
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(*opts.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		res.DB = db

		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(*opts.Database); err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
	}

	if opts.Redis != nil {
		connect := opts.ConnectRedis
		if connect == nil {
			connect = kv.Connect
		}
		rdb, err := connect(*opts.Redis)
		if err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("bootstrap: redis initialization failed: %w", err)
		}
		res.Redis = rdb
	}

	return res, nil
}
