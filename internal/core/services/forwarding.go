package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"telegram-relay-bot/internal/core/policy"
	"telegram-relay-bot/internal/domain"
	"telegram-relay-bot/internal/metrics"
	"telegram-relay-bot/internal/ports"
)

// ForwardOption — функциональная опция для настройки ForwardingService.
type ForwardOption func(*ForwardingService)

// WithMaxParallelSends ограничивает число одновременных отправок. 0 — без ограничений.
func WithMaxParallelSends(n int) ForwardOption {
	return func(s *ForwardingService) {
		if n >= 0 {
			s.maxParallel = n
		}
	}
}

// WithSendTimeout задает таймаут отправки в один чат.
func WithSendTimeout(d time.Duration) ForwardOption {
	return func(s *ForwardingService) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// WithForwardLogger устанавливает логгер для сервиса.
func WithForwardLogger(l *slog.Logger) ForwardOption {
	return func(s *ForwardingService) {
		if l != nil {
			s.log = l
		}
	}
}

// ForwardingService рассылает сообщение во все авторизованные чаты одновременно.
// Ошибка отправки в один чат не влияет на остальные.
type ForwardingService struct {
	forwarder   ports.Forwarder
	maxParallel int
	sendTimeout time.Duration
	log         *slog.Logger
}

// NewForwardingService создает новый ForwardingService.
func NewForwardingService(forwarder ports.Forwarder, opts ...ForwardOption) *ForwardingService {
	s := &ForwardingService{
		forwarder:   forwarder,
		sendTimeout: 15 * time.Second,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Forward пересылает сообщение во все авторизованные чаты снимка реестра.
// Проверка прав отправителя выполняется вызывающим кодом.
// Рассылка не прерывается отменой ctx: ожидаются результаты всех отправок.
func (s *ForwardingService) Forward(ctx context.Context, reg domain.Registry, senderID string, msg domain.Message) domain.FanOutResult {
	result := domain.FanOutResult{ID: uuid.NewString()}
	logger := s.log.With(slog.String("fanout_id", result.ID), slog.String("sender_id", senderID))

	destinations := policy.AuthorizedChats(reg)
	if len(destinations) == 0 {
		result.Status = domain.FanOutNoDestinations
		metrics.ObserveFanOut(result.Status)
		logger.InfoContext(ctx, "no authorized destinations, nothing to forward")
		return result
	}

	result.Status = domain.FanOutCompleted
	result.Outcomes = make([]domain.DeliveryOutcome, len(destinations))
	sendCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	if s.maxParallel > 0 {
		g.SetLimit(s.maxParallel)
	}
	for i, chat := range destinations {
		g.Go(func() error {
			result.Outcomes[i] = s.deliver(sendCtx, logger, chat, msg)
			return nil
		})
	}
	_ = g.Wait()

	metrics.ObserveFanOut(result.Status)
	logger.InfoContext(ctx, "fan-out finished",
		slog.Int("destinations", len(destinations)),
		slog.Int("delivered", result.DeliveredCount()),
		slog.Int("failed", len(result.Failed())),
	)
	return result
}

func (s *ForwardingService) deliver(ctx context.Context, logger *slog.Logger, chat domain.Chat, msg domain.Message) domain.DeliveryOutcome {
	ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	start := time.Now()
	err := s.forwarder.Forward(ctx, chat.ID, msg)
	outcome := domain.DeliveryOutcome{
		ChatID:   chat.ID,
		ChatName: chat.Name,
		Err:      err,
		Duration: time.Since(start),
	}
	metrics.ObserveDelivery(outcome.Delivered(), outcome.Duration)

	logger = logger.With(slog.String("chat_id", chat.ID), slog.String("chat_name", chat.Name))
	if err != nil {
		logger.ErrorContext(ctx, "Error forwarding to "+chat.Name, slog.String("error", err.Error()))
	} else {
		logger.InfoContext(ctx, "Message forwarded to "+chat.Name)
	}
	return outcome
}
