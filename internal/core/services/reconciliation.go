package services

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"telegram-relay-bot/internal/domain"
	"telegram-relay-bot/internal/ports"
)

// ChangeAction описывает, что сделало применение события членства.
type ChangeAction string

const (
	// ChangeIgnored — чат не групповой или статус не влияет на авторизацию.
	ChangeIgnored ChangeAction = "ignored"
	// ChangeAdded — новый чат добавлен как авторизованный.
	ChangeAdded ChangeAction = "added"
	// ChangeReauthorized — известный чат снова авторизован.
	ChangeReauthorized ChangeAction = "reauthorized"
	// ChangeDeauthorized — известный чат помечен неавторизованным.
	ChangeDeauthorized ChangeAction = "deauthorized"
	// ChangeUnknownRemoval — бот удален из чата, которого нет в реестре.
	ChangeUnknownRemoval ChangeAction = "unknown_removal"
)

// ApplyMembershipChange применяет событие изменения членства к копии реестра.
// Исходный реестр не изменяется. Удаление бота из чата никогда не удаляет запись,
// а только снимает флаг authorized.
func ApplyMembershipChange(reg domain.Registry, ev domain.MembershipChanged) (domain.Registry, ChangeAction) {
	next := reg.Clone()

	if !ev.Kind.IsGroupLike() {
		return next, ChangeIgnored
	}

	idx, known := next.FindChat(ev.ChatID)

	switch {
	case ev.Status.IsActive():
		if !known {
			next.Chats = append(next.Chats, domain.Chat{
				ID:         ev.ChatID,
				Name:       domain.ChatLabel(ev.ChatID, ev.Title),
				Authorized: true,
			})
			return next, ChangeAdded
		}
		next.Chats[idx].Authorized = true
		if ev.Title != "" {
			next.Chats[idx].Name = ev.Title
		}
		return next, ChangeReauthorized

	case ev.Status.IsRemoval():
		if !known {
			return next, ChangeUnknownRemoval
		}
		next.Chats[idx].Authorized = false
		return next, ChangeDeauthorized

	default:
		return next, ChangeIgnored
	}
}

// MergeProbeResults строит новый список чатов по результатам проверки.
// Новые чаты не появляются: учитываются только результаты для уже известных ID.
// Чат без результата или с ошибкой проверки становится неавторизованным.
func MergeProbeResults(reg domain.Registry, results []domain.ProbeResult) domain.Registry {
	byID := make(map[string]domain.ProbeResult, len(results))
	for _, r := range results {
		byID[r.ChatID] = r
	}

	next := reg.Clone()
	for i, chat := range next.Chats {
		res, ok := byID[chat.ID]
		if !ok || res.Err != nil {
			next.Chats[i].Authorized = false
			continue
		}
		if res.Info.Status.IsActive() && res.Info.Kind.IsGroupLike() {
			next.Chats[i].Authorized = true
			if res.Info.Title != "" {
				next.Chats[i].Name = res.Info.Title
			}
			continue
		}
		next.Chats[i].Authorized = false
	}
	return next
}

// ReconcileReport — сводка полной сверки.
type ReconcileReport struct {
	Checked       int
	Authorized    int
	Deauthorized  int
	ProbeFailures int
	Duration      time.Duration
}

// ReconcileOption — функциональная опция для настройки ReconciliationService.
type ReconcileOption func(*ReconciliationService)

// WithProbeConcurrency задает число одновременных проверок чатов.
func WithProbeConcurrency(n int) ReconcileOption {
	return func(s *ReconciliationService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithProbeTimeout задает таймаут одной проверки.
func WithProbeTimeout(d time.Duration) ReconcileOption {
	return func(s *ReconciliationService) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

// WithReconcileLogger устанавливает логгер для сервиса.
func WithReconcileLogger(l *slog.Logger) ReconcileOption {
	return func(s *ReconciliationService) {
		if l != nil {
			s.log = l
		}
	}
}

// ReconciliationService выполняет полную сверку реестра с живым состоянием платформы.
type ReconciliationService struct {
	probe        ports.MembershipProbe
	concurrency  int
	probeTimeout time.Duration
	log          *slog.Logger
}

// NewReconciliationService создает новый ReconciliationService.
func NewReconciliationService(probe ports.MembershipProbe, opts ...ReconcileOption) *ReconciliationService {
	s := &ReconciliationService{
		probe:        probe,
		concurrency:  4,
		probeTimeout: 10 * time.Second,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReconcileFull проверяет каждый известный чат и возвращает новый реестр.
// Ошибки проверки не прерывают сверку: такой чат просто становится неавторизованным.
func (s *ReconciliationService) ReconcileFull(ctx context.Context, reg domain.Registry) (domain.Registry, ReconcileReport) {
	start := time.Now()
	results := make([]domain.ProbeResult, len(reg.Chats))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, chat := range reg.Chats {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
			defer cancel()

			info, err := s.probe.Probe(probeCtx, chat.ID)
			results[i] = domain.ProbeResult{ChatID: chat.ID, Info: info, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	next := MergeProbeResults(reg, results)

	report := ReconcileReport{Checked: len(results)}
	for i, res := range results {
		logger := s.log.With(slog.String("chat_id", res.ChatID), slog.String("chat_name", next.Chats[i].Name))
		if res.Err != nil {
			report.ProbeFailures++
			logger.WarnContext(ctx, "membership probe failed, marking chat as unauthorized", slog.String("error", res.Err.Error()))
		}
		if next.Chats[i].Authorized {
			report.Authorized++
			logger.DebugContext(ctx, "chat confirmed", slog.String("status", string(res.Info.Status)))
		} else {
			report.Deauthorized++
			if res.Err == nil {
				logger.InfoContext(ctx, "chat is not an active destination",
					slog.String("status", string(res.Info.Status)),
					slog.String("kind", string(res.Info.Kind)),
				)
			}
		}
	}
	report.Duration = time.Since(start)

	s.log.InfoContext(ctx, "full reconciliation finished",
		slog.Int("checked", report.Checked),
		slog.Int("authorized", report.Authorized),
		slog.Int("deauthorized", report.Deauthorized),
		slog.Int("probe_failures", report.ProbeFailures),
		slog.Duration("duration", report.Duration),
	)
	return next, report
}
