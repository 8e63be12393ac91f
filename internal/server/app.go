// Package server wires the staging store, relay client, sweeper and the
// gRPC and HTTP surfaces, and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/stagekeeper/internal/dbx"
	"github.com/dmitrijs2005/stagekeeper/internal/logging"
	"github.com/dmitrijs2005/stagekeeper/internal/server/archive"
	"github.com/dmitrijs2005/stagekeeper/internal/server/auth"
	"github.com/dmitrijs2005/stagekeeper/internal/server/config"
	"github.com/dmitrijs2005/stagekeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/stagekeeper/internal/server/journal"
	"github.com/dmitrijs2005/stagekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/stagekeeper/internal/server/relay"
	"github.com/dmitrijs2005/stagekeeper/internal/server/staging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/dmitrijs2005/stagekeeper/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	registry *prometheus.Registry
	store    *staging.Store
	sweeper  *staging.Sweeper
	relay    *relay.Client
	archive  *archive.Archiver
	journal  *journal.PostgresJournal
	db       *sql.DB
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(logging.Options{File: c.LogFile, Level: slog.LevelInfo})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	store, err := staging.NewStore(staging.NewRegistry(), staging.Options{
		Dir:       c.StagingDir,
		ChunkSize: c.ChunkSize,
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		return nil, fmt.Errorf("staging init error: %w", err)
	}

	app := &App{
		config:   c,
		logger:   logger,
		registry: registry,
		store:    store,
		sweeper:  staging.NewSweeper(store, c.RetentionPeriod, logger, m),
	}

	var j relay.Journal
	if c.DatabaseDSN != "" {
		db, err := dbx.Open(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = db
		app.journal = journal.NewPostgresJournal(db)
		if err := app.journal.RunMigrations(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db migrations error: %w", err)
		}
		j = app.journal
	}

	app.relay = relay.NewClient(store, relay.StaticEndpoints(c.RelayEndpoints), auth.ContextSessions{}, relay.Options{
		Timeout: c.RelayTimeout,
		Journal: j,
		Clock:   store.Clock(),
		Logger:  logger,
		Metrics: m,
	})

	if c.S3Bucket != "" {
		app.archive = archive.NewArchiver(archive.Config{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
		}, store, logger)
	}

	logger.Info(ctx, "Staging ready",
		"dir", store.Dir(),
		"retention", c.RetentionPeriod.String(),
		"relay_endpoints", len(c.RelayEndpoints),
		"journal", app.journal != nil,
		"archive", app.archive != nil,
	)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) grpcDeps() gs.Deps {
	deps := gs.Deps{
		Store:     app.store,
		Relay:     app.relay,
		Sweeper:   app.sweeper,
		ChunkSize: app.config.ChunkSize,
	}
	if app.archive != nil {
		deps.Archive = app.archive
	}
	return deps
}

func (app *App) httpDeps() httpapi.Deps {
	deps := httpapi.Deps{
		Store:    app.store,
		Relay:    app.relay,
		Sweeper:  app.sweeper,
		Gatherer: app.registry,
	}
	if app.archive != nil {
		deps.Archive = app.archive
	}
	if app.journal != nil {
		deps.History = app.journal
	}
	return deps
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.grpcDeps(), app.config.SecretKey)
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := httpapi.NewRouter(app.httpDeps(), app.logger, []byte(app.config.SecretKey))
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, router, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// startSweeper clears leftovers of a previous run, then sweeps on schedule.
func (app *App) startSweeper(ctx context.Context) {
	if n := app.sweeper.Sweep(ctx); n > 0 {
		app.logger.Info(ctx, "Startup sweep", "evicted", n)
	}
	if app.config.SweepInterval <= 0 {
		app.logger.Warn(ctx, "Periodic sweep disabled", "interval", app.config.SweepInterval.String())
		return
	}
	app.sweeper.Run(ctx, app.config.SweepInterval)
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startSweeper(ctx)
	}()

	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(context.Background(), "db close error", "error", err)
		}
	}
	app.logger.Info(context.Background(), "App stopped")
}
