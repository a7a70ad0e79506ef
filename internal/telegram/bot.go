// Package telegram provides an optional chat front door: direct messages and
// mentions of the bot are treated as questions about member data and answered
// through the QA service.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/memberqa/internal/qa"
)

const sendMessageTimeout = 10 * time.Second

// Bot listens for Telegram messages and answers them via the QA service.
type Bot struct {
	tg          *tgbot.Bot
	svc         *qa.Service
	log         *slog.Logger
	botID       int64
	botUsername string
}

// NewBot creates the Telegram listener.
func NewBot(token string, svc *qa.Service, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		svc: svc,
		log: log.With("component", "telegram"),
	}

	opts := []tgbot.Option{
		tgbot.WithMiddlewares(loggingMiddleware(b.log)),
		tgbot.WithDefaultHandler(b.handleQuestion),
	}

	tg, err := tgbot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	b.tg = tg

	return b, nil
}

// Run retrieves the bot identity and blocks processing updates until the
// context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	b.botID = me.ID
	b.botUsername = me.Username
	b.log.Info("Telegram listener started", "bot_id", b.botID, "bot_username", b.botUsername)

	b.tg.Start(ctx)
	b.log.Info("Telegram listener stopped")
	return nil
}

// handleQuestion answers private messages and group messages that mention
// the bot.
func (b *Bot) handleQuestion(ctx context.Context, tg *tgbot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}

	isPrivate := msg.Chat.Type == models.ChatTypePrivate
	mention := "@" + strings.ToLower(b.botUsername)
	mentioned := b.botUsername != "" && strings.Contains(strings.ToLower(msg.Text), mention)
	if !isPrivate && !mentioned {
		return
	}

	question := stripMention(msg.Text, b.botUsername)

	ans, err := b.svc.Ask(ctx, question)
	if err != nil {
		b.log.ErrorContext(ctx, "Failed to answer question", "chat_id", msg.Chat.ID, "error", err)
		ans.Text = "I can't reach the member data right now. Please try again later."
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()
	if _, err := tg.SendMessage(sendCtx, &tgbot.SendMessageParams{
		ChatID:          msg.Chat.ID,
		Text:            ans.Text,
		ReplyParameters: &models.ReplyParameters{MessageID: msg.ID},
	}); err != nil {
		b.log.ErrorContext(ctx, "Failed to send answer", "chat_id", msg.Chat.ID, "error", err)
	}
}

// stripMention removes every occurrence of the bot's @username from the
// text, matching case-insensitively the way mention detection does.
func stripMention(text, username string) string {
	if username == "" {
		return strings.TrimSpace(text)
	}

	mention := "@" + strings.ToLower(username)
	lower := strings.ToLower(text)
	for {
		idx := strings.Index(lower, mention)
		if idx < 0 {
			break
		}
		text = text[:idx] + text[idx+len(mention):]
		lower = lower[:idx] + lower[idx+len(mention):]
	}
	return strings.TrimSpace(text)
}

// loggingMiddleware logs incoming message updates.
func loggingMiddleware(log *slog.Logger) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, tg *tgbot.Bot, update *models.Update) {
			start := time.Now()
			if update.Message != nil && update.Message.From != nil {
				log.InfoContext(ctx, "Processing update",
					"update_id", update.ID,
					"chat_id", update.Message.Chat.ID,
					"user_id", update.Message.From.ID)
			}

			next(ctx, tg, update)

			if update.Message != nil {
				log.InfoContext(ctx, "Finished processing update", "update_id", update.ID, "duration", time.Since(start))
			}
		}
	}
}
