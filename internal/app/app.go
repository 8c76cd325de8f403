// Package app wires configuration, storage, and the HTTP surface into a
// runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexiconlabs/tokengate/internal/config"
	"github.com/lexiconlabs/tokengate/internal/db"
	"github.com/lexiconlabs/tokengate/internal/defense"
	"github.com/lexiconlabs/tokengate/internal/guard"
	"github.com/lexiconlabs/tokengate/internal/httpapi"
	"github.com/lexiconlabs/tokengate/internal/ledger"
	"github.com/lexiconlabs/tokengate/internal/modelcost"
	"github.com/lexiconlabs/tokengate/internal/provider"
	"github.com/lexiconlabs/tokengate/internal/reward"
	"github.com/lexiconlabs/tokengate/internal/status"
	"github.com/lexiconlabs/tokengate/internal/store"
	"github.com/lexiconlabs/tokengate/internal/usage"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Migrate opens the database and runs migrations, then exits.
func Migrate(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the guarded chat API and blocks until ctx is canceled.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	SetupLogging(cfg.Log)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	log.WithField("dialect", db.DialectName(conn)).Info("database ready")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if errClose := rdb.Close(); errClose != nil {
			log.WithError(errClose).Warn("close redis client")
		}
	}()

	costSource := modelcost.NewConfigSource(
		cfg.Ledger.ModelCosts,
		cfg.Ledger.ModelCostsFallback,
		modelcost.FallbackPolicy(cfg.Ledger.FallbackPolicy),
	)
	costs, errResolve := costSource.Resolve()
	if errResolve != nil {
		return fmt.Errorf("app: resolve model costs: %w", errResolve)
	}
	log.WithField("models", costs.Len()).Info("model cost table loaded")

	ledgerStore := ledger.NewStore(conn, cfg.Ledger.StartingGrant)
	convos := store.NewConversationStore(conn)
	recorder := usage.NewRecorder(conn)
	completer := provider.NewOpenAIClient(cfg.Provider.APIKey, cfg.Provider.BaseURL)
	chatGuard := guard.New(conn, costs, ledgerStore, completer, convos, recorder, cfg.Provider.Timeout)
	granter := reward.NewGranter(conn, rdb, ledgerStore, costs, reward.Config{
		Amount:         cfg.Ledger.AdRewardAmount,
		IdempotencyTTL: cfg.Ledger.IdempotencyTTL,
		Window:         cfg.Ledger.RewardWindow,
		WindowMax:      cfg.Ledger.RewardWindowMax,
	})
	reporter := status.NewReporter(conn, costs, ledgerStore,
		cfg.Ledger.LowTokenMessageThreshold, cfg.Ledger.ExpiryWarningWindow)
	limits := defense.Limits{
		BodyDefault:   cfg.Defense.BodyDefault,
		QueryDefault:  cfg.Defense.QueryDefault,
		ParamsDefault: cfg.Defense.ParamsDefault,
		FieldLimits:   cfg.Defense.FieldLimits,
	}

	retention := time.Duration(cfg.Ledger.RetentionDays) * 24 * time.Hour
	cleaner := usage.NewRetentionCleaner(conn, retention, retention)
	cleaner.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	httpapi.RegisterRoutes(engine, cfg.JWT, chatGuard, granter, reporter, convos, limits)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("server listening")
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return fmt.Errorf("app: shutdown: %w", errShutdown)
		}
		return nil
	case errServe := <-errCh:
		return errServe
	}
}
