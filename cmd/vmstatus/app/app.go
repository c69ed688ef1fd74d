package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/rancher/vmstatus/internal/config"
	"github.com/rancher/vmstatus/internal/database"
	"github.com/rancher/vmstatus/internal/messaging"
	"github.com/rancher/vmstatus/internal/notify"
	"github.com/rancher/vmstatus/internal/provider"
	"github.com/rancher/vmstatus/internal/storage"
)

var ErrNotificationsDisabled = errors.New("cross-process notifications are not configured")

// App holds the components a command runs against.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *database.OpenHelper
	Resolver *notify.Resolver
	Provider *provider.VoicemailProvider

	js      nats.JetStreamContext
	closers []func() error
}

// New opens the database and, when configured, connects to NATS.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Resolver: notify.NewResolver(cfg.Notifications.QueueLength, logger),
	}
	a.onClose(func() error {
		a.Resolver.Shutdown()
		return nil
	})

	if err := a.openDatabase(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.connectNATS(); err != nil {
		a.Close()
		return nil, err
	}

	var publisher messaging.Publisher
	if a.js != nil {
		publisher = messaging.NewPublisher(a.js)
	}

	helper := provider.NewDefaultDelegateHelper(a.Resolver, publisher, logger)
	a.Provider = provider.NewStatusProvider(a.DB, helper, a.Resolver, logger)

	return a, nil
}

// Migrate creates the tables of the provider.
func (a *App) Migrate(ctx context.Context) error {
	return a.DB.Migrate(ctx, storage.StatusTableSchema(a.DB.WritableDatabase().DriverName()))
}

// CallerContext returns ctx carrying the configured caller.
func (a *App) CallerContext(ctx context.Context) context.Context {
	return provider.WithCaller(ctx, provider.Caller{
		Package:    a.Config.Provider.CallerPackage,
		Privileged: a.Config.Provider.Privileged,
	})
}

// WatchChanges streams the changes of uri published by any process from now on, until ctx is done.
func (a *App) WatchChanges(ctx context.Context, uri string) (watch.Interface, error) {
	if a.js == nil {
		return nil, ErrNotificationsDisabled
	}

	sub, err := messaging.NewSubscription(a.js, "watch-"+uuid.NewString(), nats.DeliverNew())
	if err != nil {
		return nil, err
	}

	relay := notify.NewResolver(a.Config.Notifications.QueueLength, a.Logger)
	w, err := relay.Watch(uri)
	if err != nil {
		relay.Shutdown()
		return nil, err
	}

	subscriber := messaging.NewSubscriber(sub, messaging.HandlerRegistry{
		messaging.ProviderChangedType: provider.RelayChanges(relay),
	}, a.Logger)

	go func() {
		if err := subscriber.Run(ctx); err != nil {
			a.Logger.ErrorContext(ctx, "Subscriber stopped", "error", err)
		}
		if err := sub.Unsubscribe(); err != nil {
			a.Logger.DebugContext(ctx, "Failed to unsubscribe", "error", err)
		}
		relay.Shutdown()
	}()

	return w, nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	return errors.Join(errs...)
}

func (a *App) openDatabase(ctx context.Context) error {
	var err error
	switch a.Config.Database.Driver {
	case database.DriverPgx:
		a.DB, err = database.OpenPostgres(ctx, a.Config.PostgresOptions(), a.Logger)
	default:
		a.DB, err = database.OpenSQLite(ctx, a.Config.Database.Path, a.Logger)
	}
	if err != nil {
		return err
	}
	a.onClose(a.DB.Close)

	return a.Migrate(ctx)
}

func (a *App) connectNATS() error {
	natsConfig := a.Config.Notifications.NATS
	url := natsConfig.URL

	if natsConfig.Embedded {
		ns, err := a.startServer(natsConfig.StoreDir)
		if err != nil {
			return err
		}
		url = ns.ClientURL()
	}

	if url == "" {
		return nil
	}

	js, nc, err := messaging.NewJetStreamContext(url)
	if err != nil {
		return err
	}
	a.onClose(func() error {
		nc.Close()
		return nil
	})

	if err := messaging.AddStream(js, nats.FileStorage); err != nil {
		return err
	}
	a.js = js

	a.Logger.Info("Connected to NATS", "url", url, "embedded", natsConfig.Embedded)

	return nil
}

func (a *App) startServer(storeDir string) (*server.Server, error) {
	if storeDir == "" {
		dir, err := os.MkdirTemp("", "vmstatus-nats-")
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS store directory: %w", err)
		}
		a.onClose(func() error {
			return os.RemoveAll(dir)
		})
		storeDir = dir
	}

	ns, err := messaging.NewServer(storeDir)
	if err != nil {
		return nil, err
	}
	a.onClose(func() error {
		ns.Shutdown()
		ns.WaitForShutdown()
		return nil
	})

	return ns, nil
}

func (a *App) onClose(f func() error) {
	a.closers = append(a.closers, f)
}
