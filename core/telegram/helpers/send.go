package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/artbot/core/logger"
	"github.com/m3rciful/artbot/core/telegram/netutil"
	"github.com/m3rciful/artbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

// chatKey orders deliveries per chat; callbacks without a chat fall back to the sender.
func chatKey(c tele.Context) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	if user := c.Sender(); user != nil {
		return user.ID
	}
	return 0
}

func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, chatKey(c), action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", action),
				slog.String("endpoint", endpoint),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := sendOptions(markup)
	return sendAsync(c, "send.text", "sendMessage", func() error {
		return c.Send(text, opts)
	})
}

// SendPhoto re-sends an already uploaded photo with a caption.
func SendPhoto(c tele.Context, fileID, caption string, markup ...*tele.ReplyMarkup) error {
	opts := sendOptions(markup)
	photo := &tele.Photo{File: tele.File{FileID: fileID}, Caption: caption}
	return sendAsync(c, "send.photo", "sendPhoto", func() error {
		return c.Send(photo, opts)
	})
}

// EditOrSend replaces the message behind a callback. Identical content is
// not an error, and any other edit failure falls back to a new message.
func EditOrSend(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	if c.Callback() == nil || c.Callback().Message == nil {
		return SendText(c, text, markup...)
	}
	opts := sendOptions(markup)
	return sendAsync(c, "send.edit", "editMessageText", func() error {
		err := c.Edit(text, opts)
		switch {
		case err == nil, netutil.NotModified(err):
			return nil
		case netutil.ShouldRetry(err):
			return err
		}
		logger.Debug(BuildContext(c), "tg.sender", "edit.fallback",
			slog.String("error_kind", netutil.Classify(err)),
			slog.String("err", netutil.Redact(err)),
		)
		return c.Send(text, opts)
	})
}

func sendOptions(markup []*tele.ReplyMarkup) *tele.SendOptions {
	opts := &tele.SendOptions{}
	if len(markup) > 0 && markup[0] != nil {
		opts.ReplyMarkup = markup[0]
	}
	return opts
}
