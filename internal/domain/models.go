package domain

import (
	"errors"
	"fmt"
	"slices"
)

// ErrCorruptState возвращается, когда сохраненное состояние реестра существует,
// но не может быть разобрано в ожидаемую структуру.
var ErrCorruptState = errors.New("corrupt registry state")

// Admin — отправитель, которому разрешено запускать рассылку.
type Admin struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

// Chat — чат назначения, в котором бот состоит или состоял.
type Chat struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name"`
	Authorized bool   `json:"authorized"`
}

// Registry — агрегат админов и чатов.
// Чаты хранятся срезом, чтобы сохранять порядок вставки; ID уникален.
type Registry struct {
	Admins []Admin `json:"admins" validate:"dive"`
	Chats  []Chat  `json:"chats" validate:"dive"`
}

// NewRegistry создает пустой реестр.
func NewRegistry() Registry {
	return Registry{
		Admins: []Admin{},
		Chats:  []Chat{},
	}
}

// Clone возвращает независимую копию реестра.
func (r Registry) Clone() Registry {
	return Registry{
		Admins: slices.Clone(r.Admins),
		Chats:  slices.Clone(r.Chats),
	}
}

// FindChat возвращает индекс чата по ID.
func (r Registry) FindChat(id string) (int, bool) {
	for i, c := range r.Chats {
		if c.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Normalize схлопывает дубликаты ID: позиция первого вхождения, значения последнего.
func (r Registry) Normalize() Registry {
	out := NewRegistry()

	adminIdx := make(map[string]int, len(r.Admins))
	for _, a := range r.Admins {
		if i, ok := adminIdx[a.ID]; ok {
			out.Admins[i] = a
			continue
		}
		adminIdx[a.ID] = len(out.Admins)
		out.Admins = append(out.Admins, a)
	}

	chatIdx := make(map[string]int, len(r.Chats))
	for _, c := range r.Chats {
		if i, ok := chatIdx[c.ID]; ok {
			out.Chats[i] = c
			continue
		}
		chatIdx[c.ID] = len(out.Chats)
		out.Chats = append(out.Chats, c)
	}
	return out
}

// ChatLabel возвращает отображаемое имя чата с запасным вариантом "Chat {id}".
func ChatLabel(id, title string) string {
	if title == "" {
		return fmt.Sprintf("Chat %s", id)
	}
	return title
}

// WithAdmin добавляет админа или обновляет имя существующего.
func (r Registry) WithAdmin(a Admin) Registry {
	next := r.Clone()
	for i := range next.Admins {
		if next.Admins[i].ID == a.ID {
			next.Admins[i] = a
			return next
		}
	}
	next.Admins = append(next.Admins, a)
	return next
}

// WithoutAdmin удаляет админа. Второе значение false, если админа не было.
func (r Registry) WithoutAdmin(id string) (Registry, bool) {
	next := r.Clone()
	for i := range next.Admins {
		if next.Admins[i].ID == id {
			next.Admins = slices.Delete(next.Admins, i, i+1)
			return next, true
		}
	}
	return next, false
}

// WithAuthorized выставляет флаг авторизации известного чата.
// Второе значение false, если чат неизвестен.
func (r Registry) WithAuthorized(id string, authorized bool) (Registry, bool) {
	i, ok := r.FindChat(id)
	if !ok {
		return r.Clone(), false
	}
	next := r.Clone()
	next.Chats[i].Authorized = authorized
	return next, true
}

// WithChat добавляет новый чат в конец списка.
// Второе значение false, если чат с таким ID уже известен.
func (r Registry) WithChat(c Chat) (Registry, bool) {
	if _, ok := r.FindChat(c.ID); ok {
		return r.Clone(), false
	}
	next := r.Clone()
	next.Chats = append(next.Chats, c)
	return next, true
}

// WithChatName переименовывает известный чат.
// Второе значение false, если чат неизвестен.
func (r Registry) WithChatName(id, name string) (Registry, bool) {
	i, ok := r.FindChat(id)
	if !ok {
		return r.Clone(), false
	}
	next := r.Clone()
	next.Chats[i].Name = name
	return next, true
}
