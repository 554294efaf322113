package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/artbot/core/logger"
	"github.com/m3rciful/artbot/core/telegram/helpers"
	"github.com/m3rciful/artbot/internal/ledger"
	"github.com/m3rciful/artbot/internal/render"
)

func (b *Bot) stats(c tele.Context) error {
	return b.admin(c, "stats", b.statsText)
}

func (b *Bot) audit(c tele.Context) error {
	return b.admin(c, "audit", b.auditText)
}

func (b *Bot) admin(c tele.Context, command string, report func(ctx context.Context, userID int64) (render.Text, error)) error {
	ctx := helpers.BuildContext(c)
	lang := b.adminLanguage(ctx, c)

	var text render.Text
	userID, ok := adminTarget(c.Args(), c.Text())
	if !ok {
		text = render.Key("admin_usage", "command", command)
	} else {
		var err error
		if text, err = report(ctx, userID); err != nil {
			return err
		}
	}
	return b.delivery.Deliver(c, render.Request{UserID: c.Sender().ID, Lang: lang, Texts: []render.Text{text}})
}

// adminTarget reads the user id argument of an admin command.
func adminTarget(args []string, text string) (int64, bool) {
	if len(args) == 0 {
		_, rest, _ := strings.Cut(strings.TrimSpace(text), " ")
		args = strings.Fields(rest)
	}
	if len(args) != 1 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (b *Bot) statsText(ctx context.Context, userID int64) (render.Text, error) {
	st, err := b.ledger.Stats(ctx, userID)
	if errors.Is(err, ledger.ErrUnknownUser) {
		return render.Key("admin_unknown_user", "user_id", strconv.FormatInt(userID, 10)), nil
	}
	if err != nil {
		return render.Text{}, err
	}
	return render.Key("stats_report",
		"user_id", strconv.FormatInt(userID, 10),
		"language", st.Account.Language,
		"balance", st.Account.Balance.StringFixed(2),
		"top_ups", st.TotalTopUps.StringFixed(2),
		"deductions", st.TotalDeductions.StringFixed(2),
		"operations", strconv.Itoa(st.Operations),
	), nil
}

func (b *Bot) auditText(ctx context.Context, userID int64) (render.Text, error) {
	id := strconv.FormatInt(userID, 10)
	known, err := b.ledger.Exists(ctx, userID)
	if err != nil {
		return render.Text{}, err
	}
	if !known {
		return render.Key("admin_unknown_user", "user_id", id), nil
	}

	err = ledger.Verify(ctx, b.ledger, userID, b.initial)
	switch {
	case errors.Is(err, ledger.ErrDrift):
		logger.LogEvent(ctx, b.log, slog.LevelWarn, "ledger.drift",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return render.Key("audit_drift", "user_id", id, "error", err.Error()), nil
	case err != nil:
		return render.Text{}, err
	}
	balance, err := b.ledger.Balance(ctx, userID)
	if err != nil {
		return render.Text{}, err
	}
	return render.Key("audit_ok", "user_id", id, "balance", balance.StringFixed(2)), nil
}

func (b *Bot) adminLanguage(ctx context.Context, c tele.Context) string {
	if user := c.Sender(); user != nil {
		if known, err := b.ledger.Exists(ctx, user.ID); err == nil && known {
			if lang, err := b.ledger.Language(ctx, user.ID); err == nil {
				return lang
			}
		}
	}
	return b.fallbackLanguage(c)
}
