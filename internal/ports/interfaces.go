package ports

import (
	"context"

	"telegram-relay-bot/internal/domain"
)

// Store определяет долговременное хранилище реестра.
type Store interface {
	// Load загружает реестр. Если сохраненного состояния нет, возвращает пустой
	// реестр и сразу сохраняет его. Нечитаемое состояние — domain.ErrCorruptState.
	Load(ctx context.Context) (domain.Registry, error)
	// Save атомарно заменяет сохраненное состояние целиком.
	Save(ctx context.Context, registry domain.Registry) error
}

// Forwarder пересылает сообщение в один чат назначения.
type Forwarder interface {
	Forward(ctx context.Context, chatID string, msg domain.Message) error
}

// ForwardFunc позволяет использовать обычную функцию как Forwarder.
type ForwardFunc func(ctx context.Context, chatID string, msg domain.Message) error

// Forward реализует Forwarder.
func (f ForwardFunc) Forward(ctx context.Context, chatID string, msg domain.Message) error {
	return f(ctx, chatID, msg)
}

// MembershipProbe запрашивает текущий статус бота в чате.
type MembershipProbe interface {
	Probe(ctx context.Context, chatID string) (domain.ChatInfo, error)
}

// ProbeFunc позволяет использовать обычную функцию как MembershipProbe.
type ProbeFunc func(ctx context.Context, chatID string) (domain.ChatInfo, error)

// Probe реализует MembershipProbe.
func (f ProbeFunc) Probe(ctx context.Context, chatID string) (domain.ChatInfo, error) {
	return f(ctx, chatID)
}

// Exporter выводит снимок реестра во внешний формат.
type Exporter interface {
	Export(reg domain.Registry) error
}
