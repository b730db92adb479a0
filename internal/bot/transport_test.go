package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-relay-bot/internal/domain"
)

func TestTransport_Forward(t *testing.T) {
	t.Run("отправляет forwardMessage", func(t *testing.T) {
		api := &mockAPI{}
		tr := NewTransport(api, 999, discardLogger())

		err := tr.Forward(context.Background(), "-1001", domain.Message{FromChatID: "42", MessageID: 7})

		require.NoError(t, err)
		sent := api.Sent()
		require.Len(t, sent, 1)
		fwd, ok := sent[0].(tgbotapi.ForwardConfig)
		require.True(t, ok)
		assert.Equal(t, int64(-1001), fwd.ChatID)
		assert.Equal(t, int64(42), fwd.FromChatID)
		assert.Equal(t, 7, fwd.MessageID)
	})

	t.Run("ошибка API оборачивается", func(t *testing.T) {
		apiErr := errors.New("Forbidden: bot was kicked from the group chat")
		api := &mockAPI{sendFunc: func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
			return tgbotapi.Message{}, apiErr
		}}
		tr := NewTransport(api, 999, discardLogger())

		err := tr.Forward(context.Background(), "-1", domain.Message{FromChatID: "42", MessageID: 1})

		assert.ErrorIs(t, err, apiErr)
	})

	t.Run("некорректный ID чата", func(t *testing.T) {
		api := &mockAPI{}
		tr := NewTransport(api, 999, discardLogger())

		err := tr.Forward(context.Background(), "@channel", domain.Message{FromChatID: "42", MessageID: 1})

		assert.Error(t, err)
		assert.Empty(t, api.Sent())
	})

	t.Run("таймаут контекста", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		api := &mockAPI{sendFunc: func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
			<-release
			return tgbotapi.Message{}, nil
		}}
		tr := NewTransport(api, 999, discardLogger())
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := tr.Forward(ctx, "-1", domain.Message{FromChatID: "42", MessageID: 1})

		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestTransport_Probe(t *testing.T) {
	t.Run("тип чата и статус бота", func(t *testing.T) {
		var memberReq tgbotapi.GetChatMemberConfig
		api := &mockAPI{
			getChatFunc: func(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error) {
				assert.Equal(t, int64(-1001), config.ChatID)
				return tgbotapi.Chat{ID: -1001, Type: "supergroup", Title: "Ops"}, nil
			},
			getChatMemberFunc: func(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
				memberReq = config
				return tgbotapi.ChatMember{Status: "administrator"}, nil
			},
		}
		tr := NewTransport(api, 999, discardLogger())

		info, err := tr.Probe(context.Background(), "-1001")

		require.NoError(t, err)
		assert.Equal(t, domain.ChatInfo{
			Status: domain.MemberStatusAdministrator,
			Kind:   domain.ChatKindSupergroup,
			Title:  "Ops",
		}, info)
		assert.Equal(t, int64(999), memberReq.UserID)
		assert.Equal(t, int64(-1001), memberReq.ChatID)
	})

	t.Run("чат не найден", func(t *testing.T) {
		api := &mockAPI{getChatFunc: func(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error) {
			return tgbotapi.Chat{}, errors.New("Bad Request: chat not found")
		}}
		tr := NewTransport(api, 999, discardLogger())

		_, err := tr.Probe(context.Background(), "-5")

		assert.Error(t, err)
	})
}
