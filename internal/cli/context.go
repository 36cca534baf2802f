package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-billsplit/internal/cache"
	"github.com/tbourn/go-billsplit/internal/config"
	"github.com/tbourn/go-billsplit/internal/domain"
	"github.com/tbourn/go-billsplit/internal/observability"
	"github.com/tbourn/go-billsplit/internal/remote"
	"github.com/tbourn/go-billsplit/internal/repo"
	"github.com/tbourn/go-billsplit/internal/sysutil"
)

const otelFlushTimeout = 2 * time.Second

// errNoToken is returned by commands that talk to the directory without a
// credential.
var errNoToken = errors.New("no credential: pass --token or set BILLSPLIT_TOKEN")

// CommandContext is the client core wired for one command run.
type CommandContext struct {
	Config   config.ClientConfig
	DB       *gorm.DB
	Store    repo.KVStore
	Client   *remote.Client
	Cache    *cache.Manager
	JSONMode bool

	shutdownOTel func(context.Context) error
}

// GetContext resolves configuration (flags over environment), opens the
// cache database and builds the remote client and the Cache Manager.
// Callers must Close the result.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	api, _ := cmd.Flags().GetString("api")
	token, _ := cmd.Flags().GetString("token")
	cacheDB, _ := cmd.Flags().GetString("cache-db")
	jsonMode, _ := cmd.Flags().GetBool("json")

	cfg.APIURL = strings.TrimRight(sysutil.FirstNonEmpty(api, cfg.APIURL), "/")
	cfg.Token = strings.TrimSpace(sysutil.FirstNonEmpty(token, cfg.Token))
	cfg.CacheDBPath = sysutil.FirstNonEmpty(cacheDB, cfg.CacheDBPath)

	sysutil.SetLogLevel(cfg.LogLevel)
	sysutil.ConfigureLogger(cmd.ErrOrStderr(), cfg.LogPretty)

	shutdownOTel, err := observability.SetupOTel(cmd.Context(), cfg.OTEL, Version)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	client, err := remote.NewClient(cfg.APIURL,
		remote.WithTimeout(cfg.Timeout),
		remote.WithRateLimit(cfg.RemoteRPS, cfg.RemoteBurst),
	)
	if err != nil {
		_ = shutdownOTel(context.Background())
		return nil, err
	}

	db, err := repo.OpenSQLite(cfg.CacheDBPath)
	if err != nil {
		_ = shutdownOTel(context.Background())
		return nil, fmt.Errorf("open cache %s: %w", cfg.CacheDBPath, err)
	}
	if err := repo.AutoMigrateCache(db); err != nil {
		closeDB(db)
		_ = shutdownOTel(context.Background())
		return nil, fmt.Errorf("migrate cache: %w", err)
	}

	store := repo.KVStore{DB: db}
	return &CommandContext{
		Config:   cfg,
		DB:       db,
		Store:    store,
		Client:   client,
		Cache:    cache.New(store, client),
		JSONMode: jsonMode,

		shutdownOTel: shutdownOTel,
	}, nil
}

// Close releases the cache database and flushes pending spans.
func (c *CommandContext) Close() {
	closeDB(c.DB)
	if c.shutdownOTel == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), otelFlushTimeout)
	defer cancel()
	if err := c.shutdownOTel(ctx); err != nil {
		log.Debug().Err(err).Msg("span flush failed")
	}
}

// RequireToken fails fast for commands that need the directory.
func (c *CommandContext) RequireToken() error {
	if c.Config.Token == "" {
		return errNoToken
	}
	return nil
}

// Profile returns the caller's profile. The persisted copy is used unless
// refresh is set or none exists; a failed refresh falls back to it.
func (c *CommandContext) Profile(ctx context.Context, refresh bool) (domain.UserProfile, error) {
	if !refresh {
		if p, ok := c.Cache.Profile(ctx); ok {
			return p, nil
		}
	}
	p, err := c.Cache.RefreshProfile(ctx, c.Config.Token)
	if err == nil {
		return p, nil
	}
	if cached, ok := c.Cache.Profile(ctx); ok {
		log.Warn().Err(err).Msg("profile refresh failed, using cached profile")
		return cached, nil
	}
	return domain.UserProfile{}, err
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
