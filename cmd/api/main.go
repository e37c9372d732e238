package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-racehub/internal/bus"
	"backend-racehub/internal/config"
	"backend-racehub/internal/db"
	"backend-racehub/internal/live"
	"backend-racehub/internal/logger"
	"backend-racehub/internal/results"
	"backend-racehub/internal/server"
	"backend-racehub/internal/source"
	"backend-racehub/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const broadcastLeaseTTL = 15 * time.Second

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	newLogger       func(config.Config) *logger.Logger
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) (*redis.Client, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *logger.Logger, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		newLogger:       newLogger,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func newLogger(cfg config.Config) *logger.Logger {
	return logger.New(logger.Config{Level: cfg.LogLevel, Environment: cfg.AppEnv, Encoding: cfg.LogEncoding})
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	log := deps.newLogger(cfg)
	defer func() { _ = log.Sync() }()

	var pg *pgxpool.Pool
	if cfg.Source == config.SourcePostgres {
		var err error
		pg, err = deps.connectPostgres(cfg)
		if err != nil {
			log.Warn("postgres connection failed, reading from backend API", zap.Error(err))
		}
	}

	rdb, err := deps.connectRedis(cfg)
	if err != nil {
		log.Warn("redis unavailable, running single-instance", zap.Error(err))
		rdb = nil
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, log, pg, rdb, signals, nil); err != nil {
		log.Error("server exited with error", zap.Error(err))
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run wires the service, starts the HTTP server and the live pipeline, and
// waits for a termination signal.
func Run(ctx context.Context, cfg config.Config, log *logger.Logger, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	if log == nil {
		log = logger.Nop()
	}

	rest := source.NewRESTSource(cfg.BackendURL, cfg.BackendTimeout)
	var src source.Source = rest
	if cfg.Source == config.SourcePostgres {
		if pg != nil {
			src = source.NewPostgresSource(pg)
		} else {
			log.Warn("SOURCE=postgres without a database, using backend API")
		}
	}

	// Every instance keeps its own boards, so each one needs the full feed.
	events, err := bus.New(rdb, log, bus.Options{MaxLen: cfg.BusStreamMaxLen})
	if err != nil {
		return err
	}

	hub := stream.NewHub(rdb, log)

	liveCtx, stopLive := context.WithCancel(ctx)
	defer stopLive()

	liveOpts := live.Options{
		StaleAfter:         cfg.LiveStaleAfter,
		SweepInterval:      cfg.LiveSweepInterval,
		BroadcastPerSecond: cfg.LiveBroadcastPerSecond,
		IdleAfter:          cfg.LiveIdleAfter,
	}
	if rdb != nil {
		liveOpts.Lease = live.NewRedisLease(rdb, uuid.NewString(), broadcastLeaseTTL)
	}
	registry := live.NewRegistry(liveCtx, src, hub, log, liveOpts)
	msgs, err := events.Subscribe(liveCtx, bus.TopicRaceEvents)
	if err != nil {
		_ = events.Close()
		hub.Close()
		return err
	}
	go registry.Consume(liveCtx, msgs)
	go registry.Run(liveCtx)

	srv := server.NewServer(cfg, server.Deps{
		Log:       log,
		Source:    src,
		Publisher: rest,
		Events:    events,
		Live:      registry,
		Stream:    hub,
		Drafts:    results.NewDraftStore(rdb, cfg.DraftTTL),
	})

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()
	log.Info("racehub started", zap.String("addr", cfg.ServerPort), zap.String("source", cfg.Source), zap.Bool("redis", rdb != nil))

	var runErr error
	select {
	case <-signals:
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	shutdownErr := shutdownFn(srv.App, shutdownCtx)
	stopLive()
	hub.Close()
	if err := events.Close(); err != nil {
		log.Warn("closing event bus", zap.Error(err))
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}

	if runErr != nil {
		return runErr
	}
	return shutdownErr
}
