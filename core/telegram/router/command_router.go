package router

import (
	"log/slog"
	"time"

	"github.com/m3rciful/artbot/core/logger"
	tg "github.com/m3rciful/artbot/core/telegram"
	"github.com/m3rciful/artbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes prepares command handlers wrapped with shared middleware.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}

	adminOpts := middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	}

	routes := make([]tg.Route, 0, len(reg.Commands()))
	for cmd, def := range reg.Commands() {
		h := summarized(cmd, def.Handler)
		if def.AdminOnly {
			h = middleware.AdminOnlyMiddleware(adminOpts)(h)
		}
		h = middleware.LoggerMiddleware(h)
		h = middleware.RecoverMiddleware(h)
		routes = append(routes, tg.Route{
			Endpoint: cmd,
			Handler:  h,
		})
		for _, alias := range def.Aliases {
			routes = append(routes, tg.Route{Endpoint: "/" + alias, Handler: h})
		}
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)

	return routes
}

func summarized(cmd string, h tele.HandlerFunc) tele.HandlerFunc {
	name := "command." + normalizeHandlerName(cmd)
	return func(c tele.Context) error {
		return handleWithSummary(c, name, time.Now(), "", "", func() error {
			return h(c)
		})
	}
}
