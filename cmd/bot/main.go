package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sevlyar/go-daemon"

	"telegram-relay-bot/cmd/bot/config"
	"telegram-relay-bot/internal/bot"
	"telegram-relay-bot/internal/cache"
	"telegram-relay-bot/internal/core/relay"
	"telegram-relay-bot/internal/core/services"
	"telegram-relay-bot/internal/domain"
	"telegram-relay-bot/internal/log"
	"telegram-relay-bot/internal/metrics"
	"telegram-relay-bot/internal/registry"
	"telegram-relay-bot/internal/server"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "path to bot config")
	daemonize := flag.Bool("daemon", false, "run in background (writes relay-bot.pid and relay-bot.log)")
	flag.Parse()

	if *daemonize {
		cntxt := &daemon.Context{
			PidFileName: "relay-bot.pid",
			PidFilePerm: 0o644,
			LogFileName: "relay-bot.log",
			LogFilePerm: 0o640,
			WorkDir:     "./",
			Umask:       0o27,
		}
		child, err := cntxt.Reborn()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to daemonize: %v\n", err)
			os.Exit(1)
		}
		if child != nil {
			// родительский процесс
			return
		}
		defer cntxt.Release()
	}

	if err := run(*configPath); err != nil {
		slog.Error("application run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run инкапсулирует всю логику инициализации и запуска бота.
func run(configPath string) error {
	// 1. Загрузка и валидация конфигурации
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load bot config: %w", err)
	}
	if err := cfg.ValidateFull(); err != nil {
		return fmt.Errorf("failed to validate bot config: %w", err)
	}

	// 2. Логгер с маскировкой токена и секретного пути вебхука
	opts := &slog.HandlerOptions{Level: log.ParseLevel(cfg.Logging.Level)}
	var handler slog.Handler
	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := log.NewMaskedLogger(handler, cfg.Secrets()...)
	slog.SetDefault(logger)

	if err := tgbotapi.SetLogger(log.NewTGBotAPIAdapter(logger)); err != nil {
		return fmt.Errorf("failed to set bot api logger: %w", err)
	}
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Хранилище реестра
	store, closer, err := registry.Open(cfg.Registry.Driver, cfg.Registry.Path, logger.With(slog.String("component", "registry")))
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Error("failed to close registry", slog.String("error", err.Error()))
		}
	}()

	// 4. Bot API и ядро
	api, err := bot.NewAPI(cfg.Bot.Token, "", cfg.APITimeout())
	if err != nil {
		return err
	}
	logger.Info("Authorized on account", slog.String("username", api.Self.UserName))

	transport := bot.NewTransport(api, api.Self.ID, logger)
	forwarding := services.NewForwardingService(transport,
		services.WithMaxParallelSends(cfg.Bot.MaxParallelSends),
		services.WithSendTimeout(cfg.SendTimeout()),
		services.WithForwardLogger(logger.With(slog.String("component", "forwarding"))),
	)
	reconciler := services.NewReconciliationService(transport,
		services.WithProbeConcurrency(cfg.Updates.ProbeConcurrency),
		services.WithProbeTimeout(cfg.ProbeTimeout()),
		services.WithReconcileLogger(logger.With(slog.String("component", "reconciliation"))),
	)

	core, err := relay.New(ctx, store, forwarding, reconciler, logger.With(slog.String("component", "relay")))
	if err != nil {
		return err
	}
	if err := core.Seed(ctx, cfg.Seed.Admins, cfg.Seed.Chats); err != nil {
		return err
	}

	// 5. Полная сверка до начала приема обновлений
	if _, err := core.Dispatch(ctx, domain.Startup{}); err != nil {
		return fmt.Errorf("startup reconciliation failed: %w", err)
	}

	// 6. Источник обновлений: вебхук или long polling
	var updates <-chan tgbotapi.Update
	webhookPath := ""
	queue := make(chan tgbotapi.Update, cfg.Updates.QueueSize)
	if cfg.UseWebhook() {
		cert := ""
		if cfg.Webhook.UploadCert {
			cert = cfg.Webhook.CertPEM
		}
		if err := bot.ConfigureWebhook(api, cfg.Webhook.URL, cert); err != nil {
			return err
		}
		webhookPath = cfg.WebhookPath()
		updates = queue
		logger.Info("Webhook configured")
	} else {
		if err := bot.DeleteWebhook(api); err != nil {
			return err
		}
		updates = api.GetUpdatesChan(bot.PollingConfig(cfg.Bot.PollingTimeoutSeconds))
		logger.Info("Long polling started")
	}

	dedupe := cache.NewUpdateCache(cfg.DedupeTTL())
	dedupe.StartCleanupTicker(ctx, cfg.DedupeTTL())

	srvCfg := server.Config{Addr: cfg.Webhook.ListenAddr, WebhookPath: webhookPath}
	if cfg.TLSEnabled() {
		srvCfg.CertFile = cfg.Webhook.CertPEM
		srvCfg.KeyFile = cfg.Webhook.CertKey
	}
	srv := server.New(srvCfg, queue, dedupe, core, logger)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		logger.Info("Starting server", slog.String("addr", srvCfg.Addr), slog.Bool("tls", cfg.TLSEnabled()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", slog.String("error", err.Error()))
			stop()
		}
	}()

	// 7. Цикл обработки событий до сигнала завершения
	b := bot.NewBot(api, core, logger)
	b.Start(ctx, updates)

	logger.Info("Signal received, shutting down...")
	if !cfg.UseWebhook() {
		api.StopReceivingUpdates()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", slog.String("error", err.Error()))
	}
	<-serverDone

	logger.Info("Bot stopped gracefully")
	return nil
}
