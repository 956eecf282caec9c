package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/frontdesk/internal/api"
	"github.com/matheus3301/frontdesk/internal/backup"
	"github.com/matheus3301/frontdesk/internal/bus"
	"github.com/matheus3301/frontdesk/internal/cipher"
	"github.com/matheus3301/frontdesk/internal/comms"
	"github.com/matheus3301/frontdesk/internal/config"
	"github.com/matheus3301/frontdesk/internal/dashboard"
	"github.com/matheus3301/frontdesk/internal/lock"
	"github.com/matheus3301/frontdesk/internal/logging"
	"github.com/matheus3301/frontdesk/internal/metrics"
	"github.com/matheus3301/frontdesk/internal/status"
	"github.com/matheus3301/frontdesk/internal/store"
	intsync "github.com/matheus3301/frontdesk/internal/sync"
	"github.com/matheus3301/frontdesk/internal/transport"
	"github.com/matheus3301/frontdesk/internal/workspace"
)

// Params holds the resolved workspace configuration passed to the fx module.
type Params struct {
	Workspace  string
	Config     *config.Config
	SocketPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideTracker,
			provideMetrics,
			provideLock,
			provideStore,
			provideCipher,
			provideManager,
			provideAggregator,
			provideCheckpoints,
			provideSyncEngine,
			provideBackups,
			provideScheduler,
			provideLink,
			provideLinkService,
			provideBackupService,
			api.NewPatientService,
			provideMetricsServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Path:       workspace.LogPath(p.Workspace),
		Workspace:  p.Workspace,
		Level:      p.Config.Log.Level,
		MaxSizeMB:  p.Config.Log.MaxSizeMB,
		MaxBackups: p.Config.Log.MaxBackups,
		MaxAgeDays: p.Config.Log.MaxAgeDays,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideTracker(b *bus.Bus) *status.Tracker {
	return status.NewTracker(b)
}

func provideMetrics() *metrics.Metrics {
	return metrics.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := workspace.EnsureDir(p.Workspace); err != nil {
		return nil, err
	}
	logger.Info("acquiring workspace lock", zap.String("workspace", p.Workspace))
	l, err := lock.Acquire(workspace.Dir(p.Workspace))
	if err != nil {
		return nil, err
	}
	logger.Info("workspace lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by two daemons.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := workspace.DBPath(p.Workspace)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCipher(p Params) (cipher.Cipher, error) {
	return cipher.NewAES(p.Config.Doctor.SharedKey)
}

func provideManager(p Params, t *status.Tracker, db *store.DB, c cipher.Cipher, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *comms.Manager {
	id := comms.Identity{
		ClientType: p.Config.Doctor.ClientType,
		ClientID:   p.Config.Doctor.ClientID,
		Version:    p.Config.Doctor.Version,
	}
	return comms.NewManager(t, db, c, id, b, m, logger.Named("comms"))
}

func provideAggregator(db *store.DB, mgr *comms.Manager, c cipher.Cipher, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *dashboard.Aggregator {
	agg := dashboard.NewAggregator(db, mgr, c, b, m, logger.Named("dashboard"))
	mgr.SetPusher(agg)
	return agg
}

func provideCheckpoints(db *store.DB) *intsync.Checkpoints {
	return intsync.NewCheckpoints(db)
}

func provideSyncEngine(agg *dashboard.Aggregator, cp *intsync.Checkpoints, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(agg, cp, b, intsync.DefaultDebounce, logger.Named("sync"))
}

func provideBackups(p Params, db *store.DB, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *backup.Manager {
	return backup.NewManager(workspace.BackupDir(p.Workspace), db, b, m, logger.Named("backup"))
}

// provideScheduler returns nil when scheduled backups are disabled.
func provideScheduler(p Params, mgr *backup.Manager, logger *zap.Logger) (*backup.Scheduler, error) {
	if p.Config.Backup.Schedule == "" {
		return nil, nil
	}
	return backup.NewScheduler(mgr, p.Config.Backup.Schedule, p.Config.Backup.Keep, logger.Named("backup"))
}

func provideLink(p Params, mgr *comms.Manager, logger *zap.Logger) *transport.Link {
	return transport.NewLink(p.Config.Doctor.URL, p.Config.Doctor.ClientID, mgr, logger.Named("transport"))
}

func provideLinkService(p Params, mgr *comms.Manager, engine *intsync.Engine, cp *intsync.Checkpoints, db *store.DB, b *bus.Bus, logger *zap.Logger) *api.LinkService {
	return api.NewLinkService(p.Workspace, mgr, engine, cp, db, b, logger.Named("api"))
}

func provideBackupService(mgr *backup.Manager) *api.BackupService {
	return api.NewBackupService(mgr)
}

func provideMetricsServer(p Params, m *metrics.Metrics, logger *zap.Logger) *MetricsServer {
	return newMetricsServer(p.Config.Metrics.Addr, m, logger)
}

type lifecycleParams struct {
	fx.In

	Lock      *lock.Lock
	Server    *Server
	Metrics   *MetricsServer
	DB        *store.DB
	Engine    *intsync.Engine
	Scheduler *backup.Scheduler
	Link      *transport.Link
	Manager   *comms.Manager
	Logger    *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, p lifecycleParams) {
	logger := p.Logger
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start sync engine (pushes the dashboard after local changes).
			p.Engine.Start(ctx)

			if p.Scheduler != nil {
				p.Scheduler.Start()
			}

			if err := p.Metrics.Start(); err != nil {
				return err
			}

			// Start gRPC server in background.
			go func() {
				if err := p.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			// Dial the doctor app; reconnects are handled by the link.
			p.Link.Start(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			p.Link.Stop()
			// Pushes started on entering Live read the store.
			p.Manager.Close()
			cancel()
			p.Server.Stop(stopCtx)
			p.Metrics.Stop(stopCtx)
			if p.Scheduler != nil {
				p.Scheduler.Stop()
			}
			p.Engine.Stop()
			if err := p.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := p.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
