package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-relay-bot/internal/domain"
)

// botAPI — подмножество методов *tgbotapi.BotAPI, которое использует бот.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Transport реализует ports.Forwarder и ports.MembershipProbe поверх Bot API.
type Transport struct {
	api    botAPI
	selfID int64
	logger *slog.Logger
}

// NewTransport создает транспорт. selfID — ID самого бота, нужен для getChatMember.
func NewTransport(api botAPI, selfID int64, logger *slog.Logger) *Transport {
	return &Transport{
		api:    api,
		selfID: selfID,
		logger: logger.With(slog.String("component", "transport")),
	}
}

// Forward пересылает сообщение в чат назначения методом forwardMessage.
func (t *Transport) Forward(ctx context.Context, chatID string, msg domain.Message) error {
	to, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	from, err := parseChatID(msg.FromChatID)
	if err != nil {
		return err
	}

	_, err = callWithContext(ctx, func() (tgbotapi.Message, error) {
		return t.api.Send(tgbotapi.NewForward(to, from, msg.MessageID))
	})
	if err != nil {
		return fmt.Errorf("forwardMessage to %s: %w", chatID, err)
	}
	return nil
}

// Probe запрашивает тип чата и текущий статус бота в нем.
func (t *Transport) Probe(ctx context.Context, chatID string) (domain.ChatInfo, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return domain.ChatInfo{}, err
	}

	chat, err := callWithContext(ctx, func() (tgbotapi.Chat, error) {
		return t.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: id}})
	})
	if err != nil {
		return domain.ChatInfo{}, fmt.Errorf("getChat %s: %w", chatID, err)
	}

	member, err := callWithContext(ctx, func() (tgbotapi.ChatMember, error) {
		return t.api.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: id, UserID: t.selfID},
		})
	})
	if err != nil {
		return domain.ChatInfo{}, fmt.Errorf("getChatMember %s: %w", chatID, err)
	}

	t.logger.DebugContext(ctx, "chat probed",
		slog.String("chat_id", chatID),
		slog.String("type", chat.Type),
		slog.String("status", member.Status),
	)

	return domain.ChatInfo{
		Status: domain.MemberStatus(member.Status),
		Kind:   domain.ChatKind(chat.Type),
		Title:  chat.Title,
	}, nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", s, err)
	}
	return id, nil
}

// callWithContext выполняет блокирующий вызов Bot API и прекращает ожидание
// при отмене контекста. Сам HTTP-запрос библиотеки при этом не прерывается.
func callWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
