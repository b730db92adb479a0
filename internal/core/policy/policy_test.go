package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"telegram-relay-bot/internal/domain"
)

func testRegistry() domain.Registry {
	return domain.Registry{
		Admins: []domain.Admin{{ID: "1", Name: "alice"}, {ID: "2", Name: "bob"}},
		Chats: []domain.Chat{
			{ID: "300", Name: "C", Authorized: true},
			{ID: "100", Name: "A", Authorized: false},
			{ID: "200", Name: "B", Authorized: true},
		},
	}
}

func TestIsAdmin(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		name   string
		sender string
		want   bool
	}{
		{"админ из списка", "1", true},
		{"второй админ", "2", true},
		{"не админ", "3", false},
		{"пустой ID", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAdmin(reg, tt.sender))
		})
	}

	t.Run("пустой реестр", func(t *testing.T) {
		assert.False(t, IsAdmin(domain.NewRegistry(), "1"))
	})
}

func TestIsAuthorizedDestination(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		name   string
		chatID string
		want   bool
	}{
		{name: "авторизованный чат", chatID: "300", want: true},
		{name: "неавторизованный чат", chatID: "100", want: false},
		{name: "неизвестный чат", chatID: "999", want: false},
		{name: "пустой ID", chatID: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAuthorizedDestination(reg, tt.chatID))
		})
	}

	t.Run("согласован со списком назначений", func(t *testing.T) {
		for _, id := range AuthorizedDestinations(reg) {
			assert.True(t, IsAuthorizedDestination(reg, id))
		}
	})
}

func TestAuthorizedDestinations(t *testing.T) {
	reg := testRegistry()

	got := AuthorizedDestinations(reg)
	assert.Equal(t, []string{"300", "200"}, got)

	// Повторный вызов без изменений дает тот же результат.
	assert.Equal(t, got, AuthorizedDestinations(reg))

	assert.Empty(t, AuthorizedDestinations(domain.NewRegistry()))
}

func TestAuthorizedChats(t *testing.T) {
	chats := AuthorizedChats(testRegistry())
	for _, c := range chats {
		assert.True(t, c.Authorized)
	}
	assert.Len(t, chats, 2)
}

func TestAdminIDsAndChatIDs(t *testing.T) {
	reg := testRegistry()
	assert.Equal(t, []string{"1", "2"}, AdminIDs(reg))
	assert.Equal(t, []string{"300", "100", "200"}, ChatIDs(reg))
}
