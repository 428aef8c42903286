package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/DarkarBlays/inventario/internal/api"
	"github.com/DarkarBlays/inventario/internal/bus"
	"github.com/DarkarBlays/inventario/internal/config"
	"github.com/DarkarBlays/inventario/internal/httpapi"
	"github.com/DarkarBlays/inventario/internal/instance"
	"github.com/DarkarBlays/inventario/internal/lock"
	"github.com/DarkarBlays/inventario/internal/logging"
	"github.com/DarkarBlays/inventario/internal/reconcile"
	"github.com/DarkarBlays/inventario/internal/relay"
	"github.com/DarkarBlays/inventario/internal/status"
	"github.com/DarkarBlays/inventario/internal/store"
	intsync "github.com/DarkarBlays/inventario/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	Instance   string
	SocketPath string // optional override for testing; empty = use default
	ConfigPath string // optional override; empty = ~/.inventario/config.toml
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideSyncEngine,
			provideReconciler,
			provideStatusSource,
			api.NewProductService,
			provideSyncService,
			provideRelay,
			provideGateway,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = instance.ConfigPath()
	}
	return config.Resolve(path)
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(instance.LogPath(p.Instance), p.Instance, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := instance.EnsureDir(p.Instance); err != nil {
		return nil, err
	}
	logger.Info("acquiring instance lock", zap.String("instance", p.Instance))
	l, err := lock.Acquire(instance.Dir(p.Instance))
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

// provideStore opens and migrates the database. It depends on the lock so a
// second daemon never touches the schema.
func provideStore(p Params, _ *lock.Lock, m *status.Machine, logger *zap.Logger) (*store.DB, error) {
	dbPath := instance.DBPath(p.Instance)
	db, err := store.Open(dbPath)
	if err != nil {
		_ = m.TransitionWithReason(status.Error, err.Error())
		return nil, err
	}
	if err := m.Transition(status.Migrating); err != nil {
		_ = db.Close()
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = m.TransitionWithReason(status.Error, err.Error())
		_ = db.Close()
		return nil, err
	}
	if result.Dirty {
		_ = db.Close()
		err := fmt.Errorf("schema version %d is dirty", result.Version)
		_ = m.TransitionWithReason(status.Error, err.Error())
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	if err := m.Transition(status.Ready); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func provideReconciler(engine *intsync.Engine, db *store.DB, logger *zap.Logger) *reconcile.Reconciler {
	return reconcile.NewReconciler(engine, db, logger)
}

func provideStatusSource(p Params, cfg *config.Config, m *status.Machine, engine *intsync.Engine, rec *reconcile.Reconciler) *api.StatusSource {
	return &api.StatusSource{
		Instance:     p.Instance,
		StartedAt:    time.Now(),
		Machine:      m,
		Engine:       engine,
		Reconciler:   rec,
		RelayEnabled: cfg.Relay.RemoteURL != "",
	}
}

func provideSyncService(engine *intsync.Engine, rec *reconcile.Reconciler, b *bus.Bus, src *api.StatusSource) *api.SyncService {
	return api.NewSyncService(engine, rec, b, src)
}

// provideRelay returns nil when no remote is configured; delivery is then
// left to an external agent using the reconciliation API.
func provideRelay(cfg *config.Config, rec *reconcile.Reconciler, b *bus.Bus, m *status.Machine, logger *zap.Logger) *relay.Relay {
	rc := cfg.Relay
	if rc.RemoteURL == "" {
		return nil
	}
	pusher := relay.NewHTTPPusher(rc.RemoteURL, rc.Timeout.Duration)
	return relay.New(rec, pusher, b, m, logger.Named("relay"), relay.Options{
		Interval:   rc.Interval.Duration,
		BatchSize:  rc.BatchSize,
		RatePerSec: rc.RatePerSec,
	})
}

// provideGateway returns nil when the REST gateway is disabled.
func provideGateway(cfg *config.Config, engine *intsync.Engine, rec *reconcile.Reconciler, src *api.StatusSource, logger *zap.Logger) *httpapi.Server {
	if !cfg.HTTP.Enabled {
		return nil
	}
	log := logger.Named("http")
	return httpapi.NewServer(cfg.HTTP.ListenAddr, httpapi.NewHandler(engine, rec, src, log), log)
}

type lifecycleParams struct {
	fx.In

	Server  *Server
	Lock    *lock.Lock
	DB      *store.DB
	Engine  *intsync.Engine
	Relay   *relay.Relay
	Gateway *httpapi.Server
	Logger  *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, p lifecycleParams) {
	logger := p.Logger
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := p.Engine.RefreshMetrics(ctx); err != nil {
				logger.Warn("failed to seed outbox metrics", zap.Error(err))
			}

			// Bind the gateway before serving gRPC. fx skips OnStop when
			// OnStart fails, so a failed bind releases everything here.
			if p.Gateway != nil {
				if err := p.Gateway.Start(); err != nil {
					p.Server.Close()
					release(p)
					return fmt.Errorf("start REST gateway: %w", err)
				}
			}

			go func() {
				if err := p.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if p.Relay != nil {
				p.Relay.Start(context.Background())
			} else {
				logger.Info("no remote configured, relay disabled")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if p.Relay != nil {
				p.Relay.Stop()
			}
			if p.Gateway != nil {
				if err := p.Gateway.Stop(ctx); err != nil {
					logger.Warn("error stopping REST gateway", zap.Error(err))
				}
			}
			p.Server.Stop(ctx)
			release(p)
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

// release closes the store and drops the instance lock.
func release(p lifecycleParams) {
	if err := p.DB.Close(); err != nil {
		p.Logger.Warn("error closing store", zap.Error(err))
	}
	if err := p.Lock.Release(); err != nil {
		p.Logger.Warn("error releasing lock", zap.Error(err))
	}
}
