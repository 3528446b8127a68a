// Package app wires the configured store, cache and services together for the
// server and the CLI.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/roastery/internal/cache"
	"github.com/andresuchdata/roastery/internal/catalog"
	"github.com/andresuchdata/roastery/internal/config"
	"github.com/andresuchdata/roastery/internal/costing"
	"github.com/andresuchdata/roastery/internal/forecast"
	"github.com/andresuchdata/roastery/internal/ledger"
	"github.com/andresuchdata/roastery/internal/production"
	"github.com/andresuchdata/roastery/internal/quality"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/andresuchdata/roastery/internal/repository/memory"
	"github.com/andresuchdata/roastery/internal/repository/postgres"
	"github.com/rs/zerolog/log"
)

// DriverMemory selects the in-process store instead of PostgreSQL.
const DriverMemory = "memory"

type Options struct {
	// Migrate applies the schema before the services start.
	Migrate bool
	// Now overrides the clock of every service.
	Now func() time.Time
}

type App struct {
	Config     *config.Config
	Store      repository.Store
	Catalog    *catalog.Service
	Ledger     *ledger.Service
	Costing    *costing.Service
	Quality    *quality.Service
	Production *production.Service
	Forecast   *forecast.Engine
}

// New opens the store named by cfg.Database.Driver and builds the services on it.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	store, err := openStore(ctx, cfg, opts.Migrate)
	if err != nil {
		return nil, err
	}

	seasonal, err := cache.NewSeasonalCache(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("seasonal cache unavailable, using in-memory cache")
		seasonal = cache.NewMemorySeasonalCache()
	}

	return Build(cfg, store, seasonal, opts.Now), nil
}

func openStore(ctx context.Context, cfg *config.Config, migrate bool) (repository.Store, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Database.Driver), DriverMemory) {
		log.Info().Msg("using in-memory store")
		return memory.NewStore(), nil
	}

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return postgres.NewStore(db), nil
}

// Build creates the services over an already opened store.
func Build(cfg *config.Config, store repository.Store, seasonal cache.SeasonalCache, now func() time.Time) *App {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	qualityCfg := quality.ConfigFrom(cfg.Quality)
	qualityCfg.Now = now
	qualitySvc := quality.NewService(store, qualityCfg)

	productionCfg := production.ConfigFrom(cfg.Production)
	productionCfg.Now = now

	forecastCfg := forecast.ConfigFrom(cfg)
	forecastCfg.Now = now

	return &App{
		Config:     cfg,
		Store:      store,
		Catalog:    catalog.NewService(store, now),
		Ledger:     ledger.NewService(store, ledger.Config{Now: now}),
		Costing:    costing.NewService(store),
		Quality:    qualitySvc,
		Production: production.NewService(store, qualitySvc.Analyzer(), productionCfg),
		Forecast:   forecast.NewEngine(store, seasonal, forecastCfg),
	}
}

func (a *App) Close() error {
	return a.Store.Close()
}
