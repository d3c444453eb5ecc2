package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kantinyonetim/canteen-service/internal/audit"
	"github.com/kantinyonetim/canteen-service/internal/auth"
	"github.com/kantinyonetim/canteen-service/internal/broker"
	"github.com/kantinyonetim/canteen-service/internal/config"
	"github.com/kantinyonetim/canteen-service/internal/db"
	handler "github.com/kantinyonetim/canteen-service/internal/handler/http"
	"github.com/kantinyonetim/canteen-service/internal/menu"
	"github.com/kantinyonetim/canteen-service/internal/metrics"
	"github.com/kantinyonetim/canteen-service/internal/order"
	"github.com/kantinyonetim/canteen-service/internal/stock"
	"github.com/kantinyonetim/canteen-service/internal/user"
	"github.com/kantinyonetim/canteen-service/internal/voice"
)

func serveCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply pending migrations on start")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, skipMigrations bool) error {
	log.Info().Str("env", cfg.App.Env).Msg("Canteen service starting...")

	if !skipMigrations {
		if err := db.MigrateUp(cfg.Postgres.MigrationURL()); err != nil {
			return err
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pg, err := db.New(connectCtx, cfg.Postgres)
	cancel()
	if err != nil {
		return err
	}
	defer pg.Close()

	iso := db.IsoLevel(cfg.Postgres.TxIsolation)
	userRepo := user.NewRepository(pg.Pool)

	var publisher audit.Publisher
	if cfg.RabbitMQ.URL != "" {
		p, err := broker.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Warn().Err(err).Msg("Notifications will not be broadcast")
		} else {
			defer p.Close()
			publisher = p
		}
	}

	auditRepo := audit.NewRepository(pg.Pool, sqlx.NewDb(pg.SQL(), "pgx"))
	sink := audit.NewSink(auditRepo, publisher, func(ctx context.Context) ([]uuid.UUID, error) {
		return userRepo.ListIDsByRole(ctx, user.RoleStaff, user.RoleAdmin)
	})

	m := metrics.New()
	threshold := cfg.Inventory.LowStockThreshold

	userSvc := user.NewService(userRepo, sink)
	menuSvc := menu.NewService(menu.NewRepository(pg.Pool), sink)
	stockSvc := stock.NewService(stock.NewRepository(pg.Pool, iso), sink, threshold)
	orderSvc := order.NewService(order.NewRepository(pg.Pool, iso), sink, m, threshold)
	auditSvc := audit.NewService(auditRepo)

	pipeline, err := newVoicePipeline(cfg.Voice, menuSvc, orderSvc, m)
	if err != nil {
		return err
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	router := handler.NewRouter(log.Logger, tokens, auth.RequireElevated, handler.Handlers{
		Auth:       handler.NewAuthHandler(userSvc, tokens),
		Users:      handler.NewUserHandler(userSvc),
		Menu:       handler.NewMenuHandler(menuSvc),
		Stocks:     handler.NewStockHandler(stockSvc),
		Orders:     handler.NewOrderHandler(orderSvc),
		Items:      handler.NewOrderItemHandler(orderSvc),
		Voice:      handler.NewVoiceHandler(pipeline, cfg.Voice.MaxAudioMB<<20),
		Audit:      handler.NewAuditHandler(auditSvc),
		Metrics:    m.Handler(),
		Instrument: m.Middleware,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Voice.Timeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		return err
	}
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}

// newVoicePipeline connects the speech and language models. The transcriber is
// built on first use so a missing speech backend only affects voice orders.
func newVoicePipeline(cfg config.VoiceConfig, catalog voice.Catalog, placer voice.Placer, observer voice.Observer) (*voice.Pipeline, error) {
	transcriber := voice.NewLazyTranscriber(func() (voice.Transcriber, error) {
		return voice.NewWhisperClient(voice.WhisperConfig{
			URL:      cfg.WhisperURL,
			Model:    cfg.WhisperModel,
			Language: cfg.Language,
			Token:    cfg.LLMToken,
			Timeout:  cfg.Timeout,
		})
	})

	extractor, err := voice.NewOpenAIExtractor(voice.LLMConfig{
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
		Token:   cfg.LLMToken,
	})
	if err != nil {
		return nil, err
	}

	return voice.NewPipeline(transcriber, extractor, catalog, placer, observer, cfg.Timeout), nil
}
