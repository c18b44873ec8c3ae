package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/AlexYaroshenko/notifybot/internal/bot"
	"github.com/AlexYaroshenko/notifybot/internal/config"
	"github.com/AlexYaroshenko/notifybot/internal/logger"
	"github.com/AlexYaroshenko/notifybot/internal/store"
	"github.com/AlexYaroshenko/notifybot/internal/telegram"
	"github.com/AlexYaroshenko/notifybot/internal/web"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		fallback := logger.Init("info", false)
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.Init(cfg.LogLevel, cfg.ConsoleLog)

	st, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", string(cfg.Backend)).Msg("store open failed")
	}
	defer st.Close()
	log.Info().Str("backend", string(cfg.Backend)).Msg("store ready")

	client := telegram.NewClient(cfg.BotToken)

	startupCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	me, err := client.GetMe(startupCtx)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram credential check failed")
	}
	log.Info().Str("bot", me.Username).Msg("telegram client ready")

	responder := bot.NewResponder(client, logger.WithComponent(log, "responder"))
	dispatcher := bot.NewDispatcher(st, responder, logger.WithComponent(log, "dispatcher"))

	reconciler := store.NewReconciler(st, cfg.ReconcileInterval, logger.WithComponent(log, "reconciler"))
	reconciler.Start()
	defer reconciler.Stop()

	server := web.NewServer(cfg.Port, dispatcher, logger.WithComponent(log, "web"))
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	if cfg.BaseURL != "" {
		webhookURL := cfg.BaseURL + "/telegram/webhook"
		if err := client.SetWebhook(startupCtx, webhookURL); err != nil {
			log.Fatal().Err(err).Str("url", webhookURL).Msg("webhook registration failed")
		}
		log.Info().Str("url", webhookURL).Msg("webhook registered")
	} else {
		log.Warn().Msg("BASE_URL not set, skipping webhook registration")
	}

	if cfg.KeepAlive && cfg.BaseURL != "" {
		go web.KeepAlive(cfg.BaseURL, logger.WithComponent(log, "keepalive"))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("stopped")
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendSheets:
		return store.OpenSheets(cfg.SheetID, cfg.ServiceAccountEmail, cfg.PrivateKeyPEM)
	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return store.OpenPostgres(ctx, cfg.DatabaseURL)
	case config.BackendBolt:
		return store.OpenBolt(cfg.BoltPath)
	default:
		return store.NewMemory(), nil
	}
}
