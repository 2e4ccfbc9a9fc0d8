package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dcl-forecast/internal/config"
	"dcl-forecast/internal/data"
	"dcl-forecast/internal/efa"
	"dcl-forecast/internal/logger"
	"dcl-forecast/internal/pipeline"
	"dcl-forecast/internal/storage"
)

// App is the wired set of services shared by the CLI and the API server.
type App struct {
	Config  *config.Config
	Log     *logrus.Logger
	Clock   *efa.Clock
	Querier data.Querier
	Sources *data.Sources
	Builder *pipeline.Builder
	Store   storage.Store

	closers []func()
}

// New builds the services described by cfg. Redis and Postgres are connected
// only when configured.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	clock, err := cfg.Clock()
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, Clock: clock}

	q, err := a.querier(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Querier = q

	srcOpts, err := cfg.SourceOptions()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sources = data.NewSources(q, clock, srcOpts, log)

	pipeOpts, err := cfg.PipelineOptions()
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.Builder, err = pipeline.NewBuilder(a.Sources, clock, pipeOpts, log); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) querier(ctx context.Context) (data.Querier, error) {
	entry := logger.Component(a.Log, "app")
	if dir := a.Config.NESO.FixturesDir; dir != "" {
		entry.WithField("dir", dir).Info("serving NESO queries from fixtures")
		return data.FileQuerier{Dir: dir}, nil
	}

	opts := a.Config.ClientOptions()
	opts.Logger = a.Log
	switch a.Config.Cache.Backend {
	case "memory":
		cache := data.NewMemoryCache(a.Config.Cache.TTL)
		janitorCtx, cancel := context.WithCancel(context.Background())
		go cache.RunJanitor(janitorCtx, time.Minute)
		a.closers = append(a.closers, cancel)
		opts.Cache = cache
	case "redis":
		rc := a.Config.Cache.Redis
		client, err := data.ConnectRedis(ctx, rc.Addr, rc.Password, rc.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		opts.Cache = data.NewRedisCache(client, a.Config.Cache.TTL, rc.Prefix, a.Log)
		entry.WithField("addr", rc.Addr).Info("caching NESO responses in redis")
	}
	return data.NewNESOClient(opts), nil
}

func (a *App) openStore(ctx context.Context) error {
	url := a.Config.Storage.DatabaseURL
	if url == "" {
		a.Store = storage.NewMemoryStore()
		return nil
	}
	pool, err := storage.Connect(ctx, url)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	pg := storage.NewPostgresStore(pool, a.Log)
	if err := pg.Migrate(ctx); err != nil {
		return err
	}
	a.Store = pg
	return nil
}

// Close releases connections and background workers in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
