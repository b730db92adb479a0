package services

import (
	"context"
	"sync"

	"telegram-relay-bot/internal/domain"
)

// mockForwarder — мок-реализация ports.Forwarder, запоминающая вызовы.
type mockForwarder struct {
	mu          sync.Mutex
	calls       []string
	ForwardFunc func(ctx context.Context, chatID string, msg domain.Message) error
}

func (m *mockForwarder) Forward(ctx context.Context, chatID string, msg domain.Message) error {
	m.mu.Lock()
	m.calls = append(m.calls, chatID)
	m.mu.Unlock()
	if m.ForwardFunc != nil {
		return m.ForwardFunc(ctx, chatID, msg)
	}
	return nil
}

func (m *mockForwarder) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// mockProbe — мок-реализация ports.MembershipProbe.
type mockProbe struct {
	ProbeFunc func(ctx context.Context, chatID string) (domain.ChatInfo, error)
}

func (m *mockProbe) Probe(ctx context.Context, chatID string) (domain.ChatInfo, error) {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, chatID)
	}
	return domain.ChatInfo{}, nil
}
