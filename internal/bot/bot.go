package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-relay-bot/internal/domain"
)

const (
	replyNonAdmin       = ":)"
	replyNoDestinations = "Нет авторизованных чатов для пересылки."
	replySent           = "✅ Сообщение отправлено."
)

// AllowedUpdates — типы обновлений, которые бот запрашивает у Telegram.
var AllowedUpdates = []string{"message", "my_chat_member"}

// Dispatcher принимает события транспорта. Реализуется relay.Relay.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.Event) (domain.EventResult, error)
}

// Bot переводит обновления Telegram в события ядра и отвечает отправителю.
type Bot struct {
	api    botAPI
	relay  Dispatcher
	logger *slog.Logger
}

// NewBot создает бота.
func NewBot(api botAPI, relay Dispatcher, logger *slog.Logger) *Bot {
	return &Bot{
		api:    api,
		relay:  relay,
		logger: logger.With(slog.String("component", "bot")),
	}
}

// Start обрабатывает обновления по одному в порядке поступления
// до отмены контекста или закрытия канала.
func (b *Bot) Start(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Context cancelled, stopping bot...")
			return
		case update, ok := <-updates:
			if !ok {
				b.logger.Info("updates channel closed, stopping bot...")
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate обрабатывает одно обновление.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ev, ok := toEvent(update)
	if !ok {
		return
	}

	logger := b.logger.With(slog.Int("update_id", update.UpdateID), slog.String("event", domain.EventName(ev)))

	res, err := b.relay.Dispatch(ctx, ev)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownEvent) {
			logger.Warn("event ignored", slog.String("error", err.Error()))
			return
		}
		logger.Error("failed to handle event", slog.String("error", err.Error()))
		return
	}

	if res.FanOut != nil && update.Message != nil {
		b.reply(update.Message, replyFor(*res.FanOut))
	}
}

// toEvent переводит обновление в событие ядра.
// Рассылку запускают только личные сообщения; сообщения из групп игнорируются.
func toEvent(update tgbotapi.Update) (domain.Event, bool) {
	switch {
	case update.MyChatMember != nil:
		m := update.MyChatMember
		return domain.MembershipChanged{
			ChatID: strconv.FormatInt(m.Chat.ID, 10),
			Kind:   domain.ChatKind(m.Chat.Type),
			Status: domain.MemberStatus(m.NewChatMember.Status),
			Title:  m.Chat.Title,
		}, true
	case update.Message != nil:
		msg := update.Message
		if msg.Chat == nil || !msg.Chat.IsPrivate() || msg.From == nil {
			return nil, false
		}
		return domain.IncomingMessage{
			SenderID: strconv.FormatInt(msg.From.ID, 10),
			Message: domain.Message{
				FromChatID: strconv.FormatInt(msg.Chat.ID, 10),
				MessageID:  msg.MessageID,
				Text:       msg.Text,
			},
		}, true
	default:
		return nil, false
	}
}

func replyFor(res domain.FanOutResult) string {
	switch res.Status {
	case domain.FanOutUnauthorized:
		return replyNonAdmin
	case domain.FanOutNoDestinations:
		return replyNoDestinations
	default:
		return replySent
	}
}

func (b *Bot) reply(to *tgbotapi.Message, text string) {
	msg := tgbotapi.NewMessage(to.Chat.ID, text)
	msg.ReplyToMessageID = to.MessageID
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send reply",
			slog.Int64("chat_id", to.Chat.ID),
			slog.String("error", err.Error()),
		)
	}
}

// ConfigureWebhook регистрирует вебхук. Если certPath не пуст, сертификат
// загружается в Telegram (самоподписанный сертификат).
func ConfigureWebhook(api botAPI, url, certPath string) error {
	var (
		wh  tgbotapi.WebhookConfig
		err error
	)
	if certPath != "" {
		wh, err = tgbotapi.NewWebhookWithCert(url, tgbotapi.FilePath(certPath))
	} else {
		wh, err = tgbotapi.NewWebhook(url)
	}
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	wh.AllowedUpdates = AllowedUpdates

	if _, err := api.Request(wh); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook снимает вебхук перед переходом на long polling.
func DeleteWebhook(api botAPI) error {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

// PollingConfig возвращает параметры getUpdates для long polling.
func PollingConfig(timeoutSeconds int) tgbotapi.UpdateConfig {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSeconds
	u.AllowedUpdates = AllowedUpdates
	return u
}

// NewAPI создает клиент Bot API, у которого каждый HTTP-запрос ограничен timeout.
// Пустой endpoint означает api.telegram.org.
func NewAPI(token, endpoint string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot api: %w", err)
	}
	return api, nil
}
