// Package engine runs the conversation: it reads a user's session and
// balance, applies one inbound event and returns the messages to send.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/artbot/core/logger"
	"github.com/m3rciful/artbot/internal/catalog"
	"github.com/m3rciful/artbot/internal/generation"
	"github.com/m3rciful/artbot/internal/ledger"
	"github.com/m3rciful/artbot/internal/render"
	"github.com/m3rciful/artbot/internal/session"
)

// ErrStorageUnavailable wraps every ledger or session store failure.
// The event is not applied and may be retried.
var ErrStorageUnavailable = errors.New("engine: storage unavailable")

// Notifier receives progress messages that must reach the user before
// a long call finishes.
type Notifier interface {
	Notify(ctx context.Context, req render.Request) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, req render.Request) error

func (f NotifierFunc) Notify(ctx context.Context, req render.Request) error { return f(ctx, req) }

// Deps are the collaborators of an Engine. Progress is optional.
type Deps struct {
	Ledger   ledger.Ledger
	Sessions session.Store
	Catalog  *catalog.Catalog
	Gateway  generation.Gateway
	Improver generation.Improver
	Progress Notifier
	Now      func() time.Time
}

// Engine applies events one user at a time.
type Engine struct {
	cfg      Config
	ledger   ledger.Ledger
	sessions session.Store
	catalog  *catalog.Catalog
	gateway  generation.Gateway
	improver generation.Improver
	progress Notifier

	locks   *userLocks
	applied *updateWindow
	log     *slog.Logger
}

// New validates deps and fills config defaults.
func New(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Ledger == nil:
		return nil, errors.New("engine: ledger is required")
	case deps.Sessions == nil:
		return nil, errors.New("engine: session store is required")
	case deps.Gateway == nil:
		return nil, errors.New("engine: generation gateway is required")
	}
	cfg.normalize()
	if deps.Catalog == nil {
		deps.Catalog = catalog.New(catalog.DefaultTotal, catalog.DefaultPageSize)
	}
	if deps.Improver == nil {
		deps.Improver = generation.TemplateImprover{}
	}
	return &Engine{
		cfg:      cfg,
		ledger:   deps.Ledger,
		sessions: deps.Sessions,
		catalog:  deps.Catalog,
		gateway:  deps.Gateway,
		improver: deps.Improver,
		progress: deps.Progress,
		locks:    newUserLocks(),
		applied:  newUpdateWindow(cfg.DedupeWindow, deps.Now),
		log:      logger.Component("engine"),
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Handle applies ev and returns the messages to deliver in order. A
// re-delivered update that was already applied yields no messages.
func (e *Engine) Handle(ctx context.Context, ev Event) ([]render.Request, error) {
	unlock := e.locks.Lock(ev.UserID)
	defer unlock()

	start := time.Now()
	if e.applied.Seen(ev.UpdateID) {
		logger.LogEvent(ctx, e.log, slog.LevelDebug, "engine.duplicate",
			slog.Int("update_id", ev.UpdateID),
			slog.Int64("user_id", ev.UserID),
			slog.String("status", "duplicate"),
		)
		return nil, nil
	}

	t, err := e.begin(ctx, ev)
	if err != nil {
		e.logHandled(ctx, ev, "", "", start, err)
		return nil, err
	}
	from := t.sess.State
	if err := t.dispatch(); err != nil {
		e.logHandled(ctx, ev, from, "", start, err)
		return nil, err
	}
	if err := e.sessions.Put(ctx, t.sess); err != nil {
		err = storageErr(err)
		if !t.committed {
			e.logHandled(ctx, ev, from, "", start, err)
			return nil, err
		}
		// A committed ledger change keeps the turn: deliver and remember it.
		logger.LogEvent(ctx, e.log, slog.LevelError, "engine.session_lost",
			slog.Int("update_id", ev.UpdateID),
			slog.Int64("user_id", ev.UserID),
			slog.String("state", string(from)),
			slog.String("next_state", string(t.sess.State)),
			slog.String("status", "fail"),
			slog.String("err_code", "SESSION_LOST"),
			slog.String("err", err.Error()),
		)
	}
	e.applied.Mark(ev.UpdateID)
	e.logHandled(ctx, ev, from, t.sess.State, start, nil)
	return t.out, nil
}

func (e *Engine) begin(ctx context.Context, ev Event) (*turn, error) {
	sess, err := e.sessions.Get(ctx, ev.UserID)
	if err != nil {
		return nil, storageErr(err)
	}
	known, err := e.ledger.Exists(ctx, ev.UserID)
	if err != nil {
		return nil, storageErr(err)
	}
	lang := ledger.DefaultLanguage
	if known {
		if lang, err = e.ledger.Language(ctx, ev.UserID); err != nil {
			return nil, storageErr(err)
		}
	}
	return &turn{e: e, ctx: ctx, ev: ev, sess: sess, lang: lang, known: known}, nil
}

func (e *Engine) logHandled(ctx context.Context, ev Event, from, to session.State, start time.Time, err error) {
	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.Int("update_id", ev.UpdateID),
		slog.Int64("user_id", ev.UserID),
		slog.String("kind", string(ev.Kind)),
		slog.String("action", ev.Name()),
		slog.String("state", string(from)),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
	}
	if to != "" {
		attrs = append(attrs, slog.String("next_state", string(to)))
	}
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	logger.LogEvent(ctx, e.log, level, "engine.handled", attrs...)
}

// storageErr marks a backend failure as ErrStorageUnavailable. Ledger
// contract errors pass through unchanged.
func storageErr(err error) error {
	switch {
	case errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, ledger.ErrUnknownUser),
		errors.Is(err, ledger.ErrInvalidAmount):
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
