package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/notify-worker/internal/common"
	"github.com/example/notify-worker/internal/dispatcher"
	"github.com/example/notify-worker/internal/health"
	"github.com/example/notify-worker/internal/notify"
	"github.com/example/notify-worker/internal/provider"
	"github.com/example/notify-worker/internal/queue"
	"github.com/example/notify-worker/internal/render"
	"github.com/example/notify-worker/internal/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := common.LoadConfig("notify-worker")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := common.NewLogger(cfg.ServiceName, cfg.LogLevel)
	shutdown, err := common.SetupOTel(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise telemetry")
	}
	defer common.ShutdownTelemetry(context.Background(), shutdown)

	metricsSrv := common.StartMetricsServer(cfg.MetricsPort)

	providers, err := buildProviders(cfg, logger)
	if err != nil {
		// Missing credentials fail at boot, not at first use.
		logger.Fatal().Err(err).Msg("provider configuration invalid")
	}

	d := &dispatcher.Dispatcher{
		Providers: providers,
		Renderer:  render.NewRenderer(cfg.TemplateDir),
		Logger:    logger,
	}

	q := queue.NewKafka(queue.KafkaConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     cfg.ServiceName,
		JobsTopic:   cfg.JobsTopic,
		RetryTopic:  cfg.RetryTopic,
		DLQTopic:    cfg.DLQTopic,
		EventsTopic: cfg.JobEventsTopic,
		MaxAttempts: cfg.MaxJobAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}, logger)

	pool := &worker.Pool{
		Queue:        q,
		Dispatcher:   d,
		Concurrency:  cfg.Concurrency,
		ClaimTimeout: cfg.ClaimTimeout,
		Logger:       logger,
	}

	healthSrv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: health.NewServer(pool, logger).Router(),
	}
	go func() {
		logger.Info().Int("port", cfg.HTTPPort).Msg("health endpoint listening")
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("health server failed")
		}
	}()

	go func() {
		if err := q.RunRetryForwarder(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("retry forwarder stopped")
		}
	}()

	logger.Info().Int("concurrency", cfg.Concurrency).Msg("worker started")
	if err := pool.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
	}

	// Shutdown order: claiming already stopped and in-flight jobs drained by
	// Run; now close the queue connection, then the HTTP listeners.
	if err := q.Close(); err != nil {
		logger.Error().Err(err).Msg("queue close failed")
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("health server shutdown failed")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown failed")
	}
	logger.Info().Msg("worker shut down")
}

func buildProviders(cfg *common.Config, logger zerolog.Logger) (map[notify.Channel]dispatcher.Provider, error) {
	providers := map[notify.Channel]dispatcher.Provider{}

	if cfg.SMTPHost != "" {
		smtp, err := provider.NewSMTPEmailProvider(provider.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			DefaultFrom: cfg.EmailFrom,
			BaseDelay:   cfg.RetryBaseDelay,
		}, logger)
		if err != nil {
			return nil, err
		}
		providers[notify.ChannelEmail] = smtp
	} else {
		email, err := provider.NewEmailProvider(provider.EmailConfig{
			Endpoint:    cfg.EmailEndpoint,
			APIKey:      cfg.EmailAPIKey,
			DefaultFrom: cfg.EmailFrom,
			BaseDelay:   cfg.RetryBaseDelay,
		}, logger)
		if err != nil {
			return nil, err
		}
		providers[notify.ChannelEmail] = email
	}

	sms, err := provider.NewSMSProvider(provider.SMSConfig{
		Endpoint:    cfg.SMSEndpoint,
		AccountSID:  cfg.SMSAccountSID,
		AuthToken:   cfg.SMSAuthToken,
		DefaultFrom: cfg.SMSFrom,
		BaseDelay:   cfg.RetryBaseDelay,
	}, logger)
	if err != nil {
		return nil, err
	}
	providers[notify.ChannelSMS] = sms

	push, err := provider.NewPushProvider(provider.PushConfig{
		Endpoint:  cfg.PushEndpoint,
		ServerKey: cfg.PushServerKey,
		BaseDelay: cfg.RetryBaseDelay,
	}, logger)
	if err != nil {
		return nil, err
	}
	providers[notify.ChannelPush] = push

	chat, err := provider.NewChatProvider(provider.ChatConfig{
		Endpoint:  cfg.ChatEndpoint,
		BotToken:  cfg.ChatBotToken,
		BaseDelay: cfg.RetryBaseDelay,
	}, logger)
	if err != nil {
		return nil, err
	}
	providers[notify.ChannelChat] = chat

	providers[notify.ChannelWebhook] = provider.NewWebhookProvider(provider.WebhookConfig{
		BaseDelay: cfg.RetryBaseDelay,
	}, logger)

	return providers, nil
}
