// Command splitd runs the directory service: users, favorites, contact
// search and groups behind a bearer-authenticated JSON API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-billsplit/internal/config"
	httpapi "github.com/tbourn/go-billsplit/internal/http"
	"github.com/tbourn/go-billsplit/internal/domain"
	"github.com/tbourn/go-billsplit/internal/observability"
	"github.com/tbourn/go-billsplit/internal/repo"
	"github.com/tbourn/go-billsplit/internal/services"
	"github.com/tbourn/go-billsplit/internal/sysutil"
)

// version is overwritten at build time using -ldflags.
var version = "dev"

// purgeInterval is how often expired idempotency keys are deleted.
const purgeInterval = time.Hour

// @title                      Billsplit Directory API
// @version                    1.0
// @description                Users, favorites, contact search and groups for the billsplit client.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("load .env")
	}
	cfg := config.MustLoad()

	sysutil.ConfigureLogger(os.Stderr, cfg.LogPretty)
	sysutil.SetLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	if err := seedUsers(ctx, db, cfg.SeedUsers); err != nil {
		log.Fatal().Err(err).Msg("seed users")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go purgeIdempotency(ctx, db, purgeInterval)

	go func() {
		log.Info().Str("addr", srv.Addr).Str("base", cfg.APIBasePath).Str("version", version).Msg("directory listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// seedUsers provisions the accounts listed in SEED_USERS.
func seedUsers(ctx context.Context, db *gorm.DB, seeds []config.SeedUser) error {
	if len(seeds) == 0 {
		log.Warn().Msg("no SEED_USERS configured; every request will be unauthorized")
		return nil
	}
	users := make([]domain.User, 0, len(seeds))
	for _, s := range seeds {
		users = append(users, domain.User{Email: s.Email, Name: s.Name, Token: s.Token})
	}
	if err := services.NewDirectoryService(db).Seed(ctx, users); err != nil {
		return err
	}
	log.Info().Int("users", len(users)).Msg("seeded users")
	return nil
}

// purgeIdempotency deletes expired idempotency keys every interval until ctx
// is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("purged idempotency keys")
			}
		}
	}
}
