package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"rsm-inventory-bot/internal/cache"
	"rsm-inventory-bot/internal/config"
	"rsm-inventory-bot/internal/discord"
	"rsm-inventory-bot/internal/esi"
	"rsm-inventory-bot/internal/handler"
	"rsm-inventory-bot/internal/model"
	"rsm-inventory-bot/internal/router"
	"rsm-inventory-bot/internal/service"
	"rsm-inventory-bot/pkg/logger"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log)

	log.Info().
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Int("watch_list", len(cfg.Inventory.Ships)).
		Msg("starting " + cfg.App.Name)

	store, closeStore, err := openCache(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Str("type", cfg.Cache.Type).Msg("failed to initialize cache")
	}
	defer closeStore()
	log.Info().Str("type", cfg.Cache.Type).Msg("cache initialized")

	tokens := esi.NewTokenStore(esi.TokenConfig{
		ClientID:     cfg.ESI.ClientID,
		SecretKey:    cfg.ESI.SecretKey,
		CallbackURL:  cfg.ESI.Callback,
		TokenURL:     cfg.ESI.TokenURL,
		RefreshToken: cfg.ESI.RefreshToken,
	}, store, esi.WithTokenHTTPClient(&http.Client{Timeout: cfg.ESI.HTTPTimeout}))

	loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = tokens.Load(loadCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load ESI token")
	}
	tokens.OnRefresh(func(_ context.Context, tok model.Token) {
		log.Debug().Str("component", "token").Time("expires_at", tok.ExpiresAt).Msg("token record updated")
	})

	client := esi.NewClient(esi.Config{
		BaseURL:    cfg.ESI.BaseURL,
		UserAgent:  cfg.ESI.UserAgent,
		Workers:    cfg.ESI.Workers,
		DefaultTTL: cfg.ESI.CacheTTL,
		RateLimit:  cfg.ESI.RateLimit,
		Timeout:    cfg.ESI.HTTPTimeout,
	}, tokens, store)

	inventory := service.NewInventoryService(
		service.NewLocationResolver(client, cfg.ESI.CharacterID),
		service.NewAggregator(client, store, cfg.Inventory.Ships, service.AggregatorConfig{
			CorporationID:      cfg.ESI.CorporationID,
			StructureThreshold: cfg.Inventory.StructureThreshold,
			ContractTTL:        cfg.Inventory.ContractTTL,
		}),
		service.NewSummaryBuilder(store, cfg.Inventory.Ships, service.SummaryConfig{
			AuthorName:   cfg.Discord.AuthorName,
			AuthorIcon:   cfg.Discord.AuthorIcon,
			ThumbnailURL: cfg.Discord.Thumbnail,
			Color:        cfg.Discord.Color,
			DefaultPrice: cfg.Inventory.DefaultPrice,
			Key:          cfg.Inventory.SummaryKey,
			TTL:          cfg.Inventory.SummaryTTL,
		}),
	)

	var bot *discord.Bot
	if cfg.Discord.BotToken != "" {
		bot, err = discord.New(discord.Config{
			Token:        cfg.Discord.BotToken,
			GuildID:      cfg.Discord.GuildID,
			LoadingTTL:   cfg.Discord.LoadingTTL,
			CycleTimeout: cfg.Discord.CycleTimeout,
		}, inventory)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create discord bot")
		}
		if err := bot.Open(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to discord")
		}
		log.Info().Msg("discord bot connected")
	} else {
		log.Warn().Msg("DISCORD_BOT_TOKEN not set, chat front-end disabled")
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		r := router.New(router.Config{
			Handler:        handler.New(cfg.App.Name, cfg.App.Version, store),
			SummaryHandler: handler.NewSummaryHandler(inventory),
			AdminHandler:   handler.NewAdminHandler(store, cfg.Cache.Type, len(cfg.Inventory.Ships), client.Workers()),
			APIKeys:        cfg.Server.APIKeys,
		})
		srv = &http.Server{
			Addr:         cfg.Server.Address(),
			Handler:      r,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("operator API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("server error")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if bot != nil {
		if err := bot.Close(); err != nil {
			log.Error().Err(err).Msg("discord shutdown error")
		}
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}

	log.Info().Msg("stopped")
}

// openCache builds the configured back-end. The returned func releases it.
func openCache(cfg config.CacheConfig) (cache.Cache, func(), error) {
	switch cfg.Type {
	case "memory":
		c := cache.NewMemoryCache()
		return c, func() { _ = c.Close() }, nil

	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("failed to create cache directory: %w", err)
			}
		}
		c, err := cache.NewSQLiteCache(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		cleanup := cache.NewCleanupScheduler(c, cfg.CleanupInterval)
		cleanup.Start()
		return c, func() {
			cleanup.Stop()
			_ = c.Close()
		}, nil

	default:
		c, err := cache.NewRedisCache(cache.RedisConfig{
			URL:       cfg.RedisURL,
			Addr:      cfg.RedisAddress(),
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	}
}
