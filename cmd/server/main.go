package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billing-reminder-backend/internal/config"
	"billing-reminder-backend/internal/events"
	"billing-reminder-backend/internal/logger"
	"billing-reminder-backend/internal/models"
	"billing-reminder-backend/internal/notify"
	"billing-reminder-backend/internal/repository"
	"billing-reminder-backend/internal/routes"
	"billing-reminder-backend/internal/schedule"
	"billing-reminder-backend/internal/senders"
	"billing-reminder-backend/internal/services/billing"
	"billing-reminder-backend/internal/services/dispatch"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fail("logger init", err)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	if err := db.AutoMigrate(
		&models.Invoice{},
		&models.Message{},
		&models.MessageTemplate{},
		&models.DispatchRun{},
		&models.InvoiceAuditLog{},
	); err != nil {
		log.Fatal().Err(err).Msg("auto migrate failed")
	}

	set, err := senders.Build(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise senders")
	}
	runner := dispatch.NewRunner(set, log.With().Str("component", "dispatch").Logger(), dispatch.WithDelay(cfg.DispatchDelay))

	invoiceRepo := repository.NewInvoiceRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	opts := []billing.Option{billing.WithLocation(cfg.Timezone)}

	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic, log.With().Str("component", "kafka").Logger())
		defer func() {
			if err := producer.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka producer")
			}
		}()
		opts = append(opts,
			billing.WithLedger(events.NewPublishingLedger(messageRepo, producer, log)),
			billing.WithNotifier(events.NewRunHook(producer)),
		)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, keeping run progress in memory")
		} else {
			opts = append(opts, billing.WithProgressStore(dispatch.NewRedisProgress(client, 24*time.Hour)))
		}
		defer client.Close()
	}

	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegramNotifierFromToken(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("telegram notifier disabled")
		} else {
			opts = append(opts, billing.WithNotifier(tg))
		}
	}

	svc := billing.NewBillingService(
		invoiceRepo,
		messageRepo,
		repository.NewTemplateRepository(db),
		repository.NewDispatchRunRepository(db),
		runner,
		log.With().Str("component", "billing").Logger(),
		opts...,
	)

	if cfg.DispatchCron != "" {
		daily, err := schedule.NewDaily(cfg.DispatchCron, cfg.Timezone, svc, cfg.DispatchIncludePrevious, log.With().Str("component", "schedule").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("invalid dispatch schedule")
		}
		daily.Start()
		defer daily.Stop()
		log.Info().Str("cron", cfg.DispatchCron).Msg("daily dispatch scheduled")
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, svc, cfg.DispatchIncludePrevious, log.With().Str("component", "http").Logger())

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Info().Str("addr", cfg.HTTPAddr).Str("timezone", cfg.Timezone.String()).Msg("billing reminder backend started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server terminated with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := svc.Wait(30 * time.Second); err != nil {
		log.Warn().Err(err).Msg("dispatch run still in flight at exit")
	}
}

func fail(stage string, err error) {
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	l.Fatal().Err(err).Str("stage", stage).Msg("billing reminder backend init failed")
}
