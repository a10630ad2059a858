// Package daemon composes the long-lived background process: the fx
// module wiring every component together and the Unix-socket HTTP server
// that transient CLI invocations talk to.
package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/chatsync-dev/chatsync/internal/api"
	"github.com/chatsync-dev/chatsync/internal/appdir"
	"github.com/chatsync-dev/chatsync/internal/bus"
	"github.com/chatsync-dev/chatsync/internal/config"
	"github.com/chatsync-dev/chatsync/internal/credential"
	"github.com/chatsync-dev/chatsync/internal/lock"
	"github.com/chatsync-dev/chatsync/internal/logging"
	"github.com/chatsync-dev/chatsync/internal/platform"
	"github.com/chatsync-dev/chatsync/internal/store"
	intsync "github.com/chatsync-dev/chatsync/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved data directory passed to the fx module.
type Params struct {
	DataDir    string
	SocketPath string // optional override for testing; empty = use default
	ConfigPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideRegistry,
			provideCredentials,
			provideEngine,
			provideReconciler,
			provideSyncService,
			providePlatformService,
			provideConversationService,
			provideBackupService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = appdir.ConfigPath(p.DataDir)
	}
	return config.LoadOrDefault(path)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := appdir.EnsureDirs(p.DataDir); err != nil {
		return nil, err
	}
	return logging.New(appdir.LogPath(p.DataDir))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring daemon lock", zap.String("dir", p.DataDir))
	l, err := lock.Acquire(p.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("daemon lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := appdir.DBPath(p.DataDir)
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
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRegistry(cfg *config.Config) *platform.Registry {
	var client *http.Client
	if cfg.HTTPTimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second}
	}
	return platform.NewRegistry(
		platform.NewChatGPT(platform.ChatGPTOptions{
			BaseURL:    cfg.Platforms[platform.ChatGPTID].BaseURL,
			HTTPClient: client,
		}),
		platform.NewClaude(platform.ClaudeOptions{
			BaseURL:    cfg.Platforms[platform.ClaudeID].BaseURL,
			HTTPClient: client,
		}),
	)
}

func provideCredentials(b *bus.Bus) *credential.Store {
	return credential.NewStore(b)
}

func provideEngine(db *store.DB, reg *platform.Registry, creds *credential.Store, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, reg, creds, b, logger, intsync.Options{})
}

func provideReconciler(db *store.DB, reg *platform.Registry, creds *credential.Store, b *bus.Bus, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(db, reg, creds, b, logger, 0)
}

func provideSyncService(engine *intsync.Engine, db *store.DB, reg *platform.Registry) *api.SyncService {
	return api.NewSyncService(engine, db, reg)
}

func providePlatformService(reg *platform.Registry, creds *credential.Store, engine *intsync.Engine) *api.PlatformService {
	return api.NewPlatformService(reg, creds, engine)
}

func provideConversationService(db *store.DB, rec *intsync.Reconciler) *api.ConversationService {
	return api.NewConversationService(db, rec)
}

func provideBackupService(rec *intsync.Reconciler) *api.BackupService {
	return api.NewBackupService(rec)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, cfg *config.Config, creds *credential.Store, engine *intsync.Engine, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Engine first, so statically configured credentials trigger
			// an auto sync the same way captured ones do.
			engine.Start(context.Background())

			for id, pc := range cfg.Platforms {
				if pc.Credential != "" {
					logger.Info("loading configured credential", zap.String("platform", id))
					creds.Set(id, pc.Credential)
				}
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			engine.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
