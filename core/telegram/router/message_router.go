package router

import (
	"strings"
	"time"

	tg "github.com/m3rciful/artbot/core/telegram"
	"github.com/m3rciful/artbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Conversation receives every non-command message.
type Conversation interface {
	Text(c tele.Context) error
	Photo(c tele.Context) error
	// Other handles any message that is neither text nor a photo.
	Other(c tele.Context) error
}

// otherEndpoints are message kinds that reach Conversation.Other.
var otherEndpoints = []string{
	tele.OnDocument,
	tele.OnSticker,
	tele.OnVideo,
	tele.OnVoice,
	tele.OnVideoNote,
	tele.OnAnimation,
	tele.OnAudio,
	tele.OnLocation,
	tele.OnContact,
}

// MessageRoutes builds handlers for text, photo and other message kinds.
// Text that looks like a registered command or alias is sent to that command.
func MessageRoutes(conv Conversation, reg *tg.Registry) []tg.Route {
	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}

	text := func(c tele.Context) error {
		start := time.Now()
		if reg != nil && strings.HasPrefix(c.Text(), "/") {
			if key, cmd, ok := reg.LookupCommand(commandWord(c.Text())); ok && cmd.Handler != nil && !cmd.AdminOnly {
				return handleWithSummary(c, "command."+normalizeHandlerName(key), start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}
		return handleWithSummary(c, "message.text", start, "", "", func() error {
			return conv.Text(c)
		})
	}

	photo := func(c tele.Context) error {
		return handleWithSummary(c, "message.photo", time.Now(), "", "", func() error {
			return conv.Photo(c)
		})
	}

	other := func(c tele.Context) error {
		return handleWithSummary(c, "message.other", time.Now(), "", "", func() error {
			return conv.Other(c)
		})
	}

	routes := []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(text)},
		{Endpoint: tele.OnPhoto, Handler: wrap(photo)},
	}
	for _, ep := range otherEndpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: wrap(other)})
	}
	return routes
}

// commandWord strips arguments and a @botname suffix from a command.
func commandWord(text string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	word, _, _ = strings.Cut(word, "@")
	return word
}
