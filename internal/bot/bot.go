// Package bot adapts Telegram updates to the conversation engine and
// delivers what the engine renders.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/artbot/core/logger"
	tg "github.com/m3rciful/artbot/core/telegram"
	"github.com/m3rciful/artbot/core/telegram/callbacks"
	"github.com/m3rciful/artbot/core/telegram/commands"
	"github.com/m3rciful/artbot/core/telegram/helpers"
	"github.com/m3rciful/artbot/core/telegram/router"
	"github.com/m3rciful/artbot/internal/engine"
	"github.com/m3rciful/artbot/internal/ledger"
	"github.com/m3rciful/artbot/internal/render"
	"github.com/m3rciful/artbot/internal/texts"
)

// Handler applies one event; *engine.Engine satisfies it.
type Handler interface {
	Handle(ctx context.Context, ev engine.Event) ([]render.Request, error)
}

// Deliverer sends one rendered message in reply to c.
type Deliverer interface {
	Deliver(c tele.Context, req render.Request) error
}

// Options wires a Bot.
type Options struct {
	Engine   Handler
	Delivery Deliverer
	Texts    *texts.Resolver
	Ledger   ledger.Ledger
	// InitialBalance is the replay origin for /audit.
	InitialBalance decimal.Decimal
	AdminID        int64
}

// Bot owns the Telegram side of the conversation.
type Bot struct {
	engine   Handler
	delivery Deliverer
	texts    *texts.Resolver
	ledger   ledger.Ledger
	initial  decimal.Decimal
	adminID  int64
	log      *slog.Logger
}

// New validates opts.
func New(opts Options) (*Bot, error) {
	switch {
	case opts.Engine == nil:
		return nil, errors.New("bot: engine is required")
	case opts.Texts == nil:
		return nil, errors.New("bot: texts resolver is required")
	case opts.Ledger == nil:
		return nil, errors.New("bot: ledger is required")
	}
	if opts.Delivery == nil {
		opts.Delivery = NewDelivery(opts.Texts)
	}
	return &Bot{
		engine:   opts.Engine,
		delivery: opts.Delivery,
		texts:    opts.Texts,
		ledger:   opts.Ledger,
		initial:  opts.InitialBalance,
		adminID:  opts.AdminID,
		log:      logger.Component("tg"),
	}, nil
}

// Register adds the bot's commands and one callback per engine action.
func (b *Bot) Register(reg *tg.Registry) error {
	reg.RegisterCommand("/"+engine.CommandStart, commands.Command{
		Description: "Start",
		Handler:     b.command(engine.CommandStart),
	})
	reg.RegisterCommand("/"+engine.CommandMenu, commands.Command{
		Description: "Menu",
		Handler:     b.command(engine.CommandMenu),
	})
	reg.RegisterCommand("/stats", commands.Command{
		Description: "Ledger stats of a user",
		Handler:     b.stats,
		AdminOnly:   true,
	})
	reg.RegisterCommand("/audit", commands.Command{
		Description: "Replay check of a user",
		Handler:     b.audit,
		AdminOnly:   true,
	})
	for _, action := range engine.Actions() {
		if err := reg.RegisterCallback(action, b.button); err != nil {
			return err
		}
	}
	reg.SetCallbackNotFound(b.button)
	return nil
}

// Routes returns every handler the runtime should bind.
func (b *Bot) Routes(reg *tg.Registry) []tg.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{AdminID: b.adminID})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	return append(routes, router.MessageRoutes(b, reg)...)
}

// Text implements router.Conversation.
func (b *Bot) Text(c tele.Context) error { return b.handle(c, eventFrom(c, engine.KindText)) }

// Photo implements router.Conversation.
func (b *Bot) Photo(c tele.Context) error { return b.handle(c, eventFrom(c, engine.KindPhoto)) }

// Other implements router.Conversation.
func (b *Bot) Other(c tele.Context) error { return b.handle(c, eventFrom(c, engine.KindOther)) }

func (b *Bot) command(name string) tele.HandlerFunc {
	return func(c tele.Context) error {
		ev := eventFrom(c, engine.KindCommand)
		ev.Command = name
		return b.handle(c, ev)
	}
}

func (b *Bot) button(c tele.Context) error {
	return b.handle(c, eventFrom(c, engine.KindButton))
}

// eventFrom reduces an update to an engine event. Text that starts with a
// slash becomes a command event.
func eventFrom(c tele.Context, kind engine.Kind) engine.Event {
	ev := engine.Event{UpdateID: c.Update().ID, Kind: kind}
	if user := c.Sender(); user != nil {
		ev.UserID = user.ID
	}
	switch kind {
	case engine.KindButton:
		name, arg := callbacks.ParseCallbackData(c.Callback())
		ev.Action = render.Action{Name: name, Arg: arg}
	case engine.KindText:
		ev.Text = c.Text()
		if strings.HasPrefix(ev.Text, "/") {
			ev.Kind = engine.KindCommand
			ev.Command = commandName(ev.Text)
		}
	case engine.KindPhoto:
		if msg := c.Message(); msg != nil && msg.Photo != nil {
			ev.PhotoRef = msg.Photo.FileID
		}
	}
	return ev
}

func commandName(text string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	word, _, _ = strings.Cut(strings.TrimPrefix(word, "/"), "@")
	return strings.ToLower(word)
}

func (b *Bot) handle(c tele.Context, ev engine.Event) error {
	if ev.UserID == 0 {
		return nil
	}
	ctx := withTele(helpers.BuildContext(c), c)
	reqs, err := b.engine.Handle(ctx, ev)
	if err != nil {
		notice := render.Request{
			UserID: ev.UserID,
			Lang:   b.fallbackLanguage(c),
			Texts:  []render.Text{render.Key("retry_later")},
		}
		if derr := b.delivery.Deliver(c, notice); derr != nil {
			logger.LogEvent(ctx, b.log, slog.LevelWarn, "notice.failed",
				slog.String("err", derr.Error()),
			)
		}
		return err
	}
	for _, req := range reqs {
		if err := b.delivery.Deliver(c, req); err != nil {
			return err
		}
	}
	return nil
}

// fallbackLanguage picks a language without touching storage.
func (b *Bot) fallbackLanguage(c tele.Context) string {
	if user := c.Sender(); user != nil {
		code := strings.ToLower(user.LanguageCode)
		if len(code) > 2 {
			code = code[:2]
		}
		for _, lang := range b.texts.Languages() {
			if lang == code {
				return lang
			}
		}
	}
	return texts.Fallback
}
