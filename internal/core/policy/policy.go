// Package policy содержит чистые функции авторизации над снимком реестра.
package policy

import (
	"github.com/samber/lo"

	"telegram-relay-bot/internal/domain"
)

// IsAdmin сообщает, есть ли отправитель в списке админов.
func IsAdmin(reg domain.Registry, senderID string) bool {
	return lo.ContainsBy(reg.Admins, func(a domain.Admin) bool {
		return a.ID == senderID
	})
}

// IsAuthorizedDestination сообщает, можно ли сейчас пересылать в чат.
// Неизвестный чат назначением не является.
func IsAuthorizedDestination(reg domain.Registry, chatID string) bool {
	return lo.ContainsBy(reg.Chats, func(c domain.Chat) bool {
		return c.ID == chatID && c.Authorized
	})
}

// AuthorizedChats возвращает авторизованные чаты в порядке вставки.
func AuthorizedChats(reg domain.Registry) []domain.Chat {
	return lo.Filter(reg.Chats, func(c domain.Chat, _ int) bool {
		return c.Authorized
	})
}

// AuthorizedDestinations возвращает ID авторизованных чатов в порядке вставки.
func AuthorizedDestinations(reg domain.Registry) []string {
	return lo.Map(AuthorizedChats(reg), func(c domain.Chat, _ int) string {
		return c.ID
	})
}

// AdminIDs возвращает ID всех админов.
func AdminIDs(reg domain.Registry) []string {
	return lo.Map(reg.Admins, func(a domain.Admin, _ int) string {
		return a.ID
	})
}

// ChatIDs возвращает ID всех известных чатов, включая неавторизованные.
func ChatIDs(reg domain.Registry) []string {
	return lo.Map(reg.Chats, func(c domain.Chat, _ int) string {
		return c.ID
	})
}
