// Package registry предоставляет долговременное хранение реестра админов и чатов.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"telegram-relay-bot/internal/domain"
)

var validate = validator.New()

// flexID принимает ID как строкой, так и числом: старые файлы хранили ID админов числами.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

type storedAdmin struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
}

type storedChat struct {
	ID         flexID `json:"id"`
	Name       string `json:"name"`
	Authorized *bool  `json:"authorized"`
}

type storedRegistry struct {
	Admins []storedAdmin `json:"admins"`
	Chats  []storedChat  `json:"chats"`
}

// decode разбирает сохраненное представление реестра.
// Чаты без поля authorized считаются авторизованными.
func decode(data []byte) (domain.Registry, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return domain.Registry{}, fmt.Errorf("%w: document is null", domain.ErrCorruptState)
	}

	var stored storedRegistry
	if err := json.Unmarshal(data, &stored); err != nil {
		return domain.Registry{}, fmt.Errorf("%w: %v", domain.ErrCorruptState, err)
	}

	reg := domain.NewRegistry()
	for _, a := range stored.Admins {
		reg.Admins = append(reg.Admins, domain.Admin{ID: string(a.ID), Name: a.Name})
	}
	for _, c := range stored.Chats {
		authorized := true
		if c.Authorized != nil {
			authorized = *c.Authorized
		}
		reg.Chats = append(reg.Chats, domain.Chat{ID: string(c.ID), Name: c.Name, Authorized: authorized})
	}

	if err := validate.Struct(reg); err != nil {
		return domain.Registry{}, fmt.Errorf("%w: %v", domain.ErrCorruptState, err)
	}

	return reg.Normalize(), nil
}

// encode сериализует реестр целиком с отступом в 4 пробела.
func encode(reg domain.Registry) ([]byte, error) {
	if reg.Admins == nil {
		reg.Admins = []domain.Admin{}
	}
	if reg.Chats == nil {
		reg.Chats = []domain.Chat{}
	}
	data, err := json.MarshalIndent(reg, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal registry: %w", err)
	}
	return append(data, '\n'), nil
}
