// Package relay владеет каноническим экземпляром реестра и последовательно
// применяет к нему входящие события.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"telegram-relay-bot/internal/core/policy"
	"telegram-relay-bot/internal/core/services"
	"telegram-relay-bot/internal/domain"
	"telegram-relay-bot/internal/metrics"
	"telegram-relay-bot/internal/ports"
)

// Relay — единственный писатель реестра.
// Изменения реестра выполняются под эксклюзивной блокировкой и сохраняются
// до возврата; чтения берут согласованный снимок под блокировкой чтения.
type Relay struct {
	mu  sync.RWMutex
	reg domain.Registry

	store      ports.Store
	forwarding *services.ForwardingService
	reconciler *services.ReconciliationService
	log        *slog.Logger
}

// New загружает реестр из хранилища и создает Relay.
func New(ctx context.Context, store ports.Store, forwarding *services.ForwardingService, reconciler *services.ReconciliationService, logger *slog.Logger) (*Relay, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reg, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	r := &Relay{
		reg:        reg,
		store:      store,
		forwarding: forwarding,
		reconciler: reconciler,
		log:        logger,
	}
	r.updateGauges()

	logger.InfoContext(ctx, "registry loaded",
		slog.Int("admins", len(reg.Admins)),
		slog.Int("chats", len(reg.Chats)),
		slog.Int("authorized", len(policy.AuthorizedDestinations(reg))),
	)
	return r, nil
}

// Seed заполняет пустые списки админов и чатов начальными значениями и сохраняет результат.
// Непустые списки не затрагиваются. Записи без ID отклоняются целиком:
// такой реестр не загрузится при следующем старте.
func (r *Relay) Seed(ctx context.Context, admins []domain.Admin, chats []domain.Chat) error {
	for _, a := range admins {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("seed admin %q has an empty id", a.Name)
		}
	}
	for _, c := range chats {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("seed chat %q has an empty id", c.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.reg.Clone()
	seeded := false
	if len(next.Admins) == 0 && len(admins) > 0 {
		next.Admins = append(next.Admins, admins...)
		seeded = true
	}
	if len(next.Chats) == 0 && len(chats) > 0 {
		next.Chats = append(next.Chats, chats...)
		seeded = true
	}
	if !seeded {
		return nil
	}

	next = next.Normalize()
	if err := r.commit(ctx, next); err != nil {
		return err
	}
	r.log.InfoContext(ctx, "registry seeded", slog.Int("admins", len(next.Admins)), slog.Int("chats", len(next.Chats)))
	return nil
}

// Dispatch — единая точка входа для событий транспорта.
func (r *Relay) Dispatch(ctx context.Context, ev domain.Event) (domain.EventResult, error) {
	switch e := ev.(type) {
	case domain.IncomingMessage:
		res := r.HandleMessage(ctx, e.SenderID, e.Message)
		return domain.EventResult{FanOut: &res}, nil
	case domain.MembershipChanged:
		n, err := r.HandleMembershipChange(ctx, e)
		return domain.EventResult{Chats: n}, err
	case domain.Startup:
		n, err := r.Reconcile(ctx)
		return domain.EventResult{Chats: n}, err
	default:
		return domain.EventResult{}, fmt.Errorf("%w: %T", domain.ErrUnknownEvent, ev)
	}
}

// HandleMessage проверяет права отправителя и рассылает сообщение.
// Снимок реестра и список назначений фиксируются до начала отправки.
func (r *Relay) HandleMessage(ctx context.Context, senderID string, msg domain.Message) domain.FanOutResult {
	r.mu.RLock()
	isAdmin := policy.IsAdmin(r.reg, senderID)
	snapshot := r.reg.Clone()
	r.mu.RUnlock()

	if !isAdmin {
		res := domain.FanOutResult{ID: uuid.NewString(), Status: domain.FanOutUnauthorized}
		metrics.ObserveFanOut(res.Status)
		r.log.InfoContext(ctx, "message from non-admin ignored", slog.String("sender_id", senderID))
		return res
	}

	return r.forwarding.Forward(ctx, snapshot, senderID, msg)
}

// HandleMembershipChange применяет изменение членства и сохраняет реестр.
// Возвращает число известных чатов.
func (r *Relay) HandleMembershipChange(ctx context.Context, ev domain.MembershipChanged) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := r.log.With(
		slog.String("chat_id", ev.ChatID),
		slog.String("chat_name", domain.ChatLabel(ev.ChatID, ev.Title)),
		slog.String("status", string(ev.Status)),
	)

	if !ev.Kind.IsGroupLike() {
		logger.DebugContext(ctx, "membership change in non-group chat ignored", slog.String("kind", string(ev.Kind)))
		return len(r.reg.Chats), nil
	}

	next, action := services.ApplyMembershipChange(r.reg, ev)
	if err := r.commit(ctx, next); err != nil {
		return len(r.reg.Chats), err
	}
	metrics.ObserveMembershipChange(string(action))

	switch action {
	case services.ChangeAdded:
		logger.InfoContext(ctx, "chat added to registry")
	case services.ChangeReauthorized:
		logger.InfoContext(ctx, "chat re-authorized")
	case services.ChangeDeauthorized:
		logger.InfoContext(ctx, "chat marked as unauthorized")
	default:
		logger.DebugContext(ctx, "membership change did not alter registry", slog.String("action", string(action)))
	}
	return len(r.reg.Chats), nil
}

// Reconcile выполняет полную сверку всех известных чатов и сохраняет результат один раз.
func (r *Relay) Reconcile(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, report := r.reconciler.ReconcileFull(ctx, r.reg)
	metrics.ObserveReconcile(report.Duration)
	if err := r.commit(ctx, next); err != nil {
		return len(r.reg.Chats), err
	}
	return len(r.reg.Chats), nil
}

// commit сохраняет состояние и только после успеха делает его текущим.
// Вызывается под эксклюзивной блокировкой.
func (r *Relay) commit(ctx context.Context, next domain.Registry) error {
	if err := r.store.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to persist registry: %w", err)
	}
	r.reg = next
	r.updateGauges()
	return nil
}

func (r *Relay) updateGauges() {
	metrics.SetRegistrySize(len(r.reg.Chats), len(policy.AuthorizedDestinations(r.reg)))
}

// AuthorizedDestinations возвращает ID авторизованных чатов.
func (r *Relay) AuthorizedDestinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return policy.AuthorizedDestinations(r.reg)
}

// AdminIDs возвращает ID админов.
func (r *Relay) AdminIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return policy.AdminIDs(r.reg)
}

// ChatIDs возвращает ID всех известных чатов.
func (r *Relay) ChatIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return policy.ChatIDs(r.reg)
}

// Snapshot возвращает копию текущего реестра.
func (r *Relay) Snapshot() domain.Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reg.Clone()
}
