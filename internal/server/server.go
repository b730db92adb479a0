// Package server — HTTP-сервер бота: прием вебхуков Telegram, проверка
// работоспособности и метрики Prometheus.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"telegram-relay-bot/internal/cache"
	"telegram-relay-bot/internal/metrics"
)

// maxUpdateSize ограничивает тело запроса вебхука.
const maxUpdateSize = 1 << 20

// RegistryReader — операции чтения реестра для /health.
type RegistryReader interface {
	AuthorizedDestinations() []string
	ChatIDs() []string
}

// Config — параметры HTTP-сервера.
type Config struct {
	Addr         string
	WebhookPath  string
	CertFile     string
	KeyFile      string
	EnqueueLimit time.Duration
}

// Server представляет HTTP-сервер
type Server struct {
	HTTPServer *http.Server
	cfg        Config
	updates    chan<- tgbotapi.Update
	dedupe     *cache.UpdateCache
	registry   RegistryReader
	logger     *slog.Logger
}

// New создает сервер. Если cfg.WebhookPath пуст, маршрут вебхука не регистрируется
// и сервер отдает только /health и /metrics.
func New(cfg Config, updates chan<- tgbotapi.Update, dedupe *cache.UpdateCache, registry RegistryReader, logger *slog.Logger) *Server {
	if cfg.EnqueueLimit <= 0 {
		cfg.EnqueueLimit = 5 * time.Second
	}

	s := &Server{
		cfg:      cfg,
		updates:  updates,
		dedupe:   dedupe,
		registry: registry,
		logger:   logger.With(slog.String("component", "http")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if cfg.WebhookPath != "" {
		r.Post(normalizePath(cfg.WebhookPath), s.handleWebhook)
	}

	s.HTTPServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.registry != nil {
		resp["known_chats"] = len(s.registry.ChatIDs())
		resp["authorized_chats"] = len(s.registry.AuthorizedDestinations())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// handleWebhook принимает обновление и передает его в цикл обработки.
// Повторная доставка того же update_id подтверждается без обработки.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateSize)).Decode(&update); err != nil {
		s.logger.Warn("failed to decode webhook update", slog.String("error", err.Error()))
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}

	if s.dedupe != nil && s.dedupe.Seen(update.UpdateID) {
		metrics.ObserveDroppedUpdate()
		s.logger.Debug("duplicate update dropped", slog.Int("update_id", update.UpdateID))
		w.WriteHeader(http.StatusOK)
		return
	}

	timer := time.NewTimer(s.cfg.EnqueueLimit)
	defer timer.Stop()

	select {
	case s.updates <- update:
		w.WriteHeader(http.StatusOK)
	case <-timer.C:
		// Telegram доставит обновление повторно; разрешаем повтор.
		s.forget(update.UpdateID)
		s.logger.Warn("update queue is full", slog.Int("update_id", update.UpdateID))
		http.Error(w, "busy", http.StatusServiceUnavailable)
	case <-r.Context().Done():
		s.forget(update.UpdateID)
		http.Error(w, "cancelled", http.StatusServiceUnavailable)
	}
}

func (s *Server) forget(updateID int) {
	if s.dedupe != nil {
		s.dedupe.Forget(updateID)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request served",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// ListenAndServe запускает HTTP-сервер, с TLS при заданных сертификате и ключе.
func (s *Server) ListenAndServe() error {
	if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
		return s.HTTPServer.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
	}
	return s.HTTPServer.ListenAndServe()
}

// Shutdown корректно завершает работу HTTP-сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.HTTPServer.Shutdown(ctx)
}
