package notify

import (
	"context"
	"errors"
	"fmt"
	"io"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"courtbook/internal/events"
)

// TelegramSender is the subset of the bot API used for outgoing messages.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram notifies branch admins that have a chat ID in the catalog.
type Telegram struct {
	bot         TelegramSender
	dir         *Directory
	reportChats []int64
	logger      zerolog.Logger
}

// NewTelegram connects to the bot API. reportChats receive exported documents.
func NewTelegram(token string, reportChats []int64, dir *Directory, logger zerolog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewTelegramWithSender(api, reportChats, dir, logger), nil
}

func NewTelegramWithSender(bot TelegramSender, reportChats []int64, dir *Directory, logger zerolog.Logger) *Telegram {
	return &Telegram{
		bot:         bot,
		dir:         dir,
		reportChats: reportChats,
		logger:      logger.With().Str("component", "telegram").Logger(),
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Deliver sends creation notices to admins. Other events are not relayed.
func (t *Telegram) Deliver(ctx context.Context, e events.Event) error {
	if !e.Kind.ForAdmins() {
		return nil
	}
	admins := t.dir.Admins(e.Booking)
	if len(admins) == 0 {
		return nil
	}

	v := t.dir.View(ctx, e.Booking)
	var errs []error
	for _, admin := range admins {
		if admin.TelegramChatID == 0 {
			continue
		}
		rendered, ok, err := renderAdmin(v, e.Kind, admin.Name)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		msg := tgbotapi.NewMessage(admin.TelegramChatID, rendered.Subject+"\n\n"+rendered.Body)
		if _, err := t.bot.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", admin.TelegramChatID, err))
		}
	}
	return errors.Join(errs...)
}

// SendDocument sends a file to every report chat.
func (t *Telegram) SendDocument(_ context.Context, filename string, data io.Reader, caption string) error {
	if len(t.reportChats) == 0 {
		return errors.New("no report chats configured")
	}
	payload, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	var errs []error
	for _, chatID := range t.reportChats {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: filename, Bytes: payload})
		doc.Caption = caption
		if _, err := t.bot.Send(doc); err != nil {
			t.logger.Error().Err(err).Int64("chat_id", chatID).Str("file", filename).Msg("document send failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}
