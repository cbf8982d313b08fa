// Package bot adapts the Telegram chat transport for runwatch.
//
// Outbound it renders reports and confirmations into the fixed destination
// chat; inbound it long-polls for updates and translates commands and button
// callbacks into events for the worker loop. All business decisions live in
// the loop; this package is deliberately thin I/O.
package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ferrisk/runwatch/config"
	"github.com/ferrisk/runwatch/errors"
	"github.com/ferrisk/runwatch/internal/httpclient"
	"github.com/ferrisk/runwatch/watch"
)

// pollTimeout is the long-poll window for getUpdates.
const pollTimeout = 30 // seconds

// Bot wraps the Telegram API for one fixed destination chat.
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    *zap.SugaredLogger
}

// New authenticates against the Telegram API. The HTTP client timeout sits
// well above the long-poll window so getUpdates is never cut short.
func New(cfg *config.Config, log *zap.SugaredLogger) (*Bot, error) {
	client := httpclient.New((pollTimeout + 60) * time.Second)
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to authenticate telegram bot")
	}

	b := &Bot{
		api:    api,
		chatID: cfg.Telegram.ChatID,
		log:    log.Named("bot"),
	}
	b.log.Infow("Telegram bot authenticated", "username", api.Self.UserName, "chat_id", b.chatID)
	return b, nil
}

// SendText posts a plain-text message to the destination chat.
func (b *Bot) SendText(text string) error {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return errors.NewTransient(err, "telegram send")
	}
	return nil
}

// SendReport delivers a rendered report. Bulk mode attaches the confirm and
// cancel buttons to the summary itself; per-run mode sends the summary and
// then one message per action, each with its own button. A send failure for
// one per-run message does not stop the rest.
func (b *Bot) SendReport(rep watch.Report) error {
	if len(rep.Actions) == 0 {
		return b.SendText(rep.Summary)
	}

	if rep.Bulk {
		msg := tgbotapi.NewMessage(b.chatID, rep.Summary)
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rep.Actions))
		for _, a := range rep.Actions {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Token)))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
		if _, err := b.api.Send(msg); err != nil {
			return errors.NewTransient(err, "telegram send report")
		}
		return nil
	}

	if err := b.SendText(rep.Summary); err != nil {
		return err
	}
	var firstErr error
	for _, a := range rep.Actions {
		msg := tgbotapi.NewMessage(b.chatID, a.Detail)
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Token)))
		if _, err := b.api.Send(msg); err != nil {
			b.log.Warnw("Failed to send per-run action", "token", a.Token, "error", err)
			if firstErr == nil {
				firstErr = errors.NewTransient(err, "telegram send action")
			}
		}
	}
	return firstErr
}

// AckCallback answers a callback query at the transport level. This is
// distinct from the business-level response posted to the chat.
func (b *Bot) AckCallback(callbackID, text string) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.api.Request(cb); err != nil {
		return errors.NewTransient(err, "telegram answer callback")
	}
	return nil
}

// Listen long-polls Telegram and feeds translated events into the channel
// until the context is cancelled. Unrecognized updates are dropped with a
// debug log; they never crash the dispatch loop.
func (b *Bot) Listen(ctx context.Context, events chan<- watch.Event) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)

	b.log.Infow("Listening for updates")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Infow("Update listener stopped")
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			ev, ok := TranslateUpdate(upd, b.chatID)
			if !ok {
				b.log.Debugw("Ignoring update", "update_id", upd.UpdateID)
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				b.api.StopReceivingUpdates()
				return
			}
		}
	}
}

// TranslateUpdate maps a Telegram update onto a worker-loop event. Only the
// configured chat is honored; commands and callbacks from anywhere else are
// dropped. Returns false for anything that should be ignored.
func TranslateUpdate(upd tgbotapi.Update, chatID int64) (watch.Event, bool) {
	if cq := upd.CallbackQuery; cq != nil {
		if cq.Message == nil || cq.Message.Chat == nil || cq.Message.Chat.ID != chatID {
			return watch.Event{}, false
		}
		if !watch.IsToken(cq.Data) {
			return watch.Event{}, false
		}
		return watch.Event{
			Kind:       watch.EventCallback,
			CallbackID: cq.ID,
			Token:      cq.Data,
		}, true
	}

	if msg := upd.Message; msg != nil && msg.IsCommand() {
		if msg.Chat == nil || msg.Chat.ID != chatID {
			return watch.Event{}, false
		}
		return watch.Event{
			Kind:    watch.EventCommand,
			Command: msg.Command(),
		}, true
	}

	return watch.Event{}, false
}
