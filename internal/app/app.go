// Package app wires configuration, storage, the engine and the Telegram
// adapter into one runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/m3rciful/artbot/core/bootstrap"
	"github.com/m3rciful/artbot/core/logger"
	coretelegram "github.com/m3rciful/artbot/core/telegram"
	"github.com/m3rciful/artbot/internal/bot"
	"github.com/m3rciful/artbot/internal/catalog"
	"github.com/m3rciful/artbot/internal/engine"
	"github.com/m3rciful/artbot/internal/generation"
	"github.com/m3rciful/artbot/internal/ledger"
	"github.com/m3rciful/artbot/internal/ops"
	"github.com/m3rciful/artbot/internal/session"
	"github.com/m3rciful/artbot/internal/texts"
)

// App is a bootstrapped application ready to run.
type App struct {
	cfg      *Config
	infra    *bootstrap.Result
	ledger   ledger.Ledger
	engine   *engine.Engine
	bot      *bot.Bot
	registry *coretelegram.Registry
	ops      *http.Server
}

// Bootstrap brings up the logger and the backends cfg selects, then builds the app.
func Bootstrap(cfg *Config) (*App, error) {
	opts := bootstrap.Options{Config: &cfg.Config}
	if cfg.Ledger.Driver == DriverPostgres {
		opts.Database = &cfg.Database
	}
	if cfg.Session.Driver == DriverRedis {
		opts.Redis = &cfg.Redis
	}
	infra, err := bootstrap.Run(opts)
	if err != nil {
		return nil, err
	}
	a, err := build(cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *Config, infra *bootstrap.Result) (*App, error) {
	p, err := cfg.Billing.prices()
	if err != nil {
		return nil, err
	}
	res, err := texts.Load()
	if err != nil {
		return nil, fmt.Errorf("app: texts: %w", err)
	}

	a := &App{cfg: cfg, infra: infra}
	checks := map[string]ops.Check{}

	switch cfg.Ledger.Driver {
	case DriverPostgres:
		if infra.DB == nil {
			return nil, errors.New("app: postgres ledger without a database")
		}
		a.ledger = ledger.NewPostgres(infra.DB, p.initial)
		checks[DriverPostgres] = infra.DB.PingContext
	default:
		a.ledger = ledger.NewMemory(p.initial)
	}

	var sessions session.Store
	switch cfg.Session.Driver {
	case DriverRedis:
		if infra.Redis == nil {
			return nil, errors.New("app: redis sessions without a redis client")
		}
		sessions = session.NewRedisStore(infra.Redis, cfg.Redis.Prefix, cfg.Session.TTL)
		checks[DriverRedis] = func(ctx context.Context) error { return infra.Redis.Ping(ctx).Err() }
	default:
		sessions = session.NewMemoryStore()
	}

	delivery := bot.NewDelivery(res)
	a.engine, err = engine.New(engine.Config{
		GenerationCost:    p.generation,
		ImproveCost:       p.improve,
		MaxTopUp:          p.maxTopUp,
		GenerationTimeout: cfg.Generation.Timeout,
		DedupeWindow:      cfg.Engine.DedupeWindow,
		PaymentMethods:    cfg.Billing.PaymentMethods,
		Languages:         res.Languages(),
		MaxPromptRunes:    cfg.Generation.MaxPromptRunes,
	}, engine.Deps{
		Ledger:   a.ledger,
		Sessions: sessions,
		Catalog:  catalog.New(catalog.DefaultTotal, catalog.DefaultPageSize),
		Gateway:  generation.Echo{Delay: cfg.Generation.Delay},
		Improver: generation.TemplateImprover{Format: cfg.Generation.ImproveTemplate},
		Progress: delivery,
	})
	if err != nil {
		return nil, err
	}

	a.bot, err = bot.New(bot.Options{
		Engine:         a.engine,
		Delivery:       delivery,
		Texts:          res,
		Ledger:         a.ledger,
		InitialBalance: p.initial,
		AdminID:        cfg.Telegram.AdminID,
	})
	if err != nil {
		return nil, err
	}
	a.registry = coretelegram.NewRegistry()
	if err := a.bot.Register(a.registry); err != nil {
		return nil, err
	}

	if cfg.Ops.Listen != "" {
		a.ops = ops.NewServer(cfg.Ops.Listen, ops.NewHandler(a.ledger, p.initial, checks))
	}

	logger.Info(context.Background(), "app", "app.wired",
		slog.String("ledger", cfg.Ledger.Driver),
		slog.String("session", cfg.Session.Driver),
		slog.Bool("ops", a.ops != nil),
	)
	return a, nil
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    a.registry,
		Middlewares: coretelegram.DefaultMiddlewares(&a.cfg.Config, nil),
		Routes:      a.bot.Routes(a.registry),
	}, nil
}

// Serve runs the ops endpoint, when enabled, until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if a.ops == nil {
		<-ctx.Done()
		return nil
	}
	return ops.Serve(ctx, a.ops)
}

// Close releases the backends.
func (a *App) Close() error {
	return a.infra.Close()
}
