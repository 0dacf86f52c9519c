// Package main runs the METAR service.
//
// The service subscribes to raw weather messages on NATS, decodes every
// METAR/SPECI they carry, stores the result in the configured databases and
// republishes the decoded report. It also serves the HTTP API.
//
// Configuration comes from the environment (and an optional .env file); see
// internal/config for the variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"metar_parser/internal/api"
	"metar_parser/internal/config"
	"metar_parser/internal/ingest"
	"metar_parser/internal/observability"
	_ "metar_parser/internal/parsers" // register all parsers via init()
	"metar_parser/internal/registry"
	"metar_parser/internal/storage"
)

const appName = "metar-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(os.Stderr, cfg.LogFormat, cfg.SlogLevel(), appName, cfg.Environment)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	logger.Info("parsers registered", "count", registry.Default().ParserCount(), "labels", registry.Default().RegisteredLabels())

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close(logger)

	if cfg.NATS.Enabled {
		nc, err := ingest.Connect(cfg.NATS.URL, appName, logger)
		if err != nil {
			return err
		}

		proc := ingest.NewProcessor(registry.Default(), st.store(), nc, cfg.NATS.OutputSubject, logger, metrics)
		sub := ingest.NewSubscriber(nc, proc, logger, metrics)
		if err := sub.Start(ctx, cfg.NATS.Subject, cfg.NATS.Queue); err != nil {
			nc.Close()
			return err
		}
		defer func() {
			if err := sub.Close(); err != nil {
				logger.Warn("close subscriber", "error", err)
			}
		}()
	}

	server := api.NewServer(api.Config{
		APIKeys:    strings.Split(cfg.HTTP.APIKey, ","),
		CORSOrigin: cfg.HTTP.CORSOrigin,
	}, st.apiStores(), metrics, logger)

	err = server.Run(ctx, cfg.HTTP.Addr, cfg.ShutdownTimeout)
	logger.Info("shutting down")
	return err
}

// stores holds the databases opened for this run.
type stores struct {
	sqlite *storage.SQLiteDB
	ch     *storage.ClickHouseDB
	pg     *storage.PostgresDB
	both   *storage.DB
}

// openStores opens every enabled database and creates its schema.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *stores, err error) {
	st := &stores{}
	defer func() {
		if err != nil {
			st.close(logger)
		}
	}()

	if cfg.SQLite.Path != "" {
		if st.sqlite, err = storage.OpenSQLite(cfg.SQLite.Path); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		logger.Info("sqlite archive opened", "path", cfg.SQLite.Path)
	}

	dbCfg := cfg.Storage()
	switch {
	case cfg.ClickHouse.Enabled && cfg.Postgres.Enabled:
		if st.both, err = storage.Open(ctx, dbCfg); err != nil {
			return nil, err
		}
		st.ch, st.pg = st.both.CH, st.both.PG
		if err = st.both.CreateSchemas(ctx); err != nil {
			return nil, err
		}
	case cfg.ClickHouse.Enabled:
		if st.ch, err = storage.OpenClickHouse(ctx, dbCfg.ClickHouse); err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		if err = st.ch.CreateSchema(ctx); err != nil {
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	case cfg.Postgres.Enabled:
		if st.pg, err = storage.OpenPostgres(ctx, dbCfg.Postgres); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err = st.pg.CreateSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
	}

	logger.Info("stores ready",
		"sqlite", st.sqlite != nil,
		"clickhouse", st.ch != nil,
		"postgres", st.pg != nil,
	)
	return st, nil
}

// store returns the fan-out writer over every open database, or nil when
// none is configured.
func (s *stores) store() storage.Store {
	var multi storage.Multi
	if s.sqlite != nil {
		multi = append(multi, s.sqlite)
	}
	if s.both != nil {
		multi = append(multi, s.both)
	} else {
		if s.ch != nil {
			multi = append(multi, s.ch)
		}
		if s.pg != nil {
			multi = append(multi, s.pg)
		}
	}

	if len(multi) == 0 {
		return nil
	}
	return multi
}

// apiStores exposes the open databases to the API. Interfaces are only set
// for stores that exist so the API can tell them apart from nil.
func (s *stores) apiStores() api.Stores {
	var out api.Stores
	if s.pg != nil {
		out.Conditions = s.pg
	}
	if s.sqlite != nil {
		out.Archive = s.sqlite
	}
	if s.ch != nil {
		out.History = s.ch
	}
	return out
}

func (s *stores) close(logger *slog.Logger) {
	var errs []error
	if s.sqlite != nil {
		errs = append(errs, s.sqlite.Close())
	}
	if s.both != nil {
		errs = append(errs, s.both.Close())
	} else {
		if s.ch != nil {
			errs = append(errs, s.ch.Close())
		}
		if s.pg != nil {
			s.pg.Close()
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("close stores", "error", err)
	}
}
