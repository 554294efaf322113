package bot

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/artbot/core/telegram/helpers"
	"github.com/m3rciful/artbot/core/telegram/keyboard"
	"github.com/m3rciful/artbot/internal/render"
	"github.com/m3rciful/artbot/internal/texts"
)

// captionLimit is the Bot API cap on photo captions, in characters.
const captionLimit = 1024

var errNoUpdate = errors.New("bot: no telegram context bound")

type teleCtxKey struct{}

func withTele(ctx context.Context, c tele.Context) context.Context {
	return context.WithValue(ctx, teleCtxKey{}, c)
}

func teleFrom(ctx context.Context) (tele.Context, bool) {
	c, ok := ctx.Value(teleCtxKey{}).(tele.Context)
	return c, ok && c != nil
}

// Delivery turns render requests into Telegram messages.
type Delivery struct {
	texts *texts.Resolver
}

// NewDelivery resolves message texts and button labels through res.
func NewDelivery(res *texts.Resolver) *Delivery {
	return &Delivery{texts: res}
}

// Deliver sends or edits one message for the chat behind c.
func (d *Delivery) Deliver(c tele.Context, req render.Request) error {
	text, markup := d.compose(req)
	switch {
	case req.Photo != "":
		return helpers.SendPhoto(c, req.Photo, truncate(text, captionLimit), markup)
	case req.Edit:
		return helpers.EditOrSend(c, text, markup)
	default:
		return helpers.SendText(c, text, markup)
	}
}

// Notify delivers a progress message for the update bound to ctx.
func (d *Delivery) Notify(ctx context.Context, req render.Request) error {
	c, ok := teleFrom(ctx)
	if !ok {
		return errNoUpdate
	}
	return d.Deliver(c, req)
}

func (d *Delivery) compose(req render.Request) (string, *tele.ReplyMarkup) {
	parts := make([]string, 0, len(req.Texts))
	for _, t := range req.Texts {
		if s := d.resolve(req.Lang, t); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n"), d.markup(req.Lang, req.Rows)
}

func (d *Delivery) resolve(lang string, t render.Text) string {
	if t.Key == "" {
		return t.Literal
	}
	params := make(map[string]string, len(t.Params)+len(t.ParamKeys))
	for k, v := range t.Params {
		params[k] = v
	}
	for k, key := range t.ParamKeys {
		params[k] = d.texts.Text(lang, key, nil)
	}
	return d.texts.Text(lang, t.Key, params)
}

func (d *Delivery) markup(lang string, rows [][]render.Choice) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]keyboard.InlineBtn, 0, len(rows))
	for _, row := range rows {
		btns := make([]keyboard.InlineBtn, 0, len(row))
		for _, ch := range row {
			label := ch.Label
			if label == "" {
				label = d.texts.Text(lang, ch.LabelKey, nil)
			}
			btns = append(btns, keyboard.InlineBtn{Text: label, Unique: ch.Action.Name, Data: ch.Action.Arg})
		}
		out = append(out, btns)
	}
	return keyboard.InlineButtonsRows(out...)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}
