// Package app wires configuration into stores shared by the commands.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"jpx-stock-lab/internal/config"
	"jpx-stock-lab/internal/pipeline"
	"jpx-stock-lab/internal/storage"
	chstore "jpx-stock-lab/internal/storage/clickhouse"
	"jpx-stock-lab/internal/storage/memory"
	"jpx-stock-lab/internal/storage/migrations"
	pgstore "jpx-stock-lab/internal/storage/postgres"
)

// Stores holds every store a command may need.
type Stores struct {
	Prices   storage.StockPriceStore
	Adjusted storage.AdjustedPriceStore
	Features storage.SeriesFeatureStore
	Trials   storage.SearchTrialStore

	cleanup func()
}

// Pipeline returns the subset the pipeline runner reads and writes.
func (s *Stores) Pipeline() pipeline.Stores {
	return pipeline.Stores{Prices: s.Prices, Adjusted: s.Adjusted, Features: s.Features}
}

// Close releases database connections.
func (s *Stores) Close() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

// OpenStores creates the stores of the configured backend. The sql backend
// keeps raw prices and trials in PostgreSQL and adjusted series and features
// in ClickHouse. With migrate set, both schemas are applied first.
func OpenStores(ctx context.Context, cfg config.StorageConfig, migrate bool, logger zerolog.Logger) (*Stores, error) {
	if cfg.Backend != config.BackendSQL {
		logger.Debug().Msg("using in-memory stores")
		return &Stores{
			Prices:   memory.NewStockPriceStore(),
			Adjusted: memory.NewAdjustedPriceStore(),
			Features: memory.NewSeriesFeatureStore(),
			Trials:   memory.NewSearchTrialStore(),
			cleanup:  func() {},
		}, nil
	}

	var poolOpts []pgstore.PoolOption
	if cfg.PostgresMaxConns > 0 {
		poolOpts = append(poolOpts, pgstore.WithMaxConns(cfg.PostgresMaxConns))
	}
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, poolOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	var chConn *chstore.Conn
	if migrate {
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info().Strs("files", applied).Msg("postgres migrations applied")

		conn, applied, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		logger.Info().Strs("files", applied).Msg("clickhouse migrations applied")
		chConn = conn
	} else {
		chConn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
	}

	return &Stores{
		// PostgreSQL: source panel + search trials
		Prices: pgstore.NewStockPriceStore(pool),
		Trials: pgstore.NewSearchTrialStore(pool),

		// ClickHouse: derived series
		Adjusted: chstore.NewAdjustedPriceStore(chConn),
		Features: chstore.NewSeriesFeatureStore(chConn),

		cleanup: func() {
			chConn.Close()
			pool.Close()
		},
	}, nil
}
