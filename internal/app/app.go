package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq"

	"workflowhub/console/internal/api"
	"workflowhub/console/internal/audit"
	"workflowhub/console/internal/config"
	"workflowhub/console/internal/credstore"
	"workflowhub/console/internal/guard"
	"workflowhub/console/internal/nav"
	"workflowhub/console/internal/notify"
	"workflowhub/console/internal/observability"
	"workflowhub/console/internal/session"
	"workflowhub/console/internal/transport"
)

type Options struct {
	// LogOutput receives structured logs. Defaults to stderr.
	LogOutput io.Writer
	// Transport is the base round tripper under the interceptor.
	Transport http.RoundTripper
	// StartRoute is the initial location. Defaults to "/".
	StartRoute string
}

// App owns one console session and the components that depend on it.
type App struct {
	cfg     config.Config
	log     *slog.Logger
	closers []func() error

	Store   credstore.Store
	Session *session.Manager
	API     *api.Client
	Nav     *nav.History
	Guard   *guard.Guard
	Poller  *notify.Poller

	stopPolling func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := observability.NewLogger(opts.LogOutput, cfg.Log.Level, cfg.Log.Format)
	a := &App{cfg: cfg, log: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Store = store

	start := opts.StartRoute
	if start == "" {
		start = "/"
	}
	a.Nav = nav.NewHistory(start)

	interceptor := transport.NewInterceptor(opts.Transport, a.Nav, transport.Options{
		LoginPath:  cfg.API.LoginPath,
		LoginRoute: cfg.Routes.Login,
		Logger:     logger.With("component", "transport"),
	})
	a.API = api.New(cfg.API.BaseURL, cfg.API.LoginPath, &http.Client{
		Transport: interceptor,
		Timeout:   cfg.API.Timeout,
	})

	trail := audit.NewLogger(cfg.AuditLogFile)
	a.closers = append(a.closers, trail.Close)
	a.Session = session.NewManager(store, a.API, session.Options{
		Logger: logger.With("component", "session"),
		Audit:  trail,
	})
	interceptor.Bind(a.Session)

	a.Guard = guard.New(a.Nav, a.Session, guard.Options{
		LoginRoute:        cfg.Routes.Login,
		UnauthorizedRoute: cfg.Routes.Unauthorized,
		Logger:            logger.With("component", "guard"),
	})
	a.Session.Subscribe(a.Guard.Watch)

	a.Poller = notify.New(a.API, notify.Options{
		Interval: cfg.Notify.PollInterval,
		Logger:   logger.With("component", "notify"),
	})

	return a, nil
}

func (a *App) openStore(ctx context.Context) (credstore.Store, error) {
	switch {
	case a.cfg.DatabaseURL != "":
		db, err := sql.Open("postgres", a.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		store, err := credstore.NewPostgresStore(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("create postgres credential store: %w", err)
		}
		a.log.Debug("credential store ready", "backend", "postgres")
		return store, nil
	case a.cfg.RedisURL != "":
		store, err := credstore.NewRedisStore(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("create redis credential store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.log.Debug("credential store ready", "backend", "redis")
		return store, nil
	default:
		store, err := credstore.NewFileStore(a.cfg.Session.CredentialFile)
		if err != nil {
			return nil, fmt.Errorf("create credential store: %w", err)
		}
		a.log.Debug("credential store ready", "backend", "file", "path", store.Path())
		return store, nil
	}
}

// Start restores the persisted session. The guard is already subscribed, so
// a location entered before Start is settled by it.
func (a *App) Start(ctx context.Context) error {
	if err := a.Session.Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	return nil
}

// EnablePolling ties the notification poller to the session: it runs while
// the session is Authenticated. Commands that only need one fetch leave it
// off.
func (a *App) EnablePolling() {
	if a.stopPolling != nil {
		return
	}
	a.stopPolling = a.Session.Subscribe(a.Poller.Watch)
	a.Poller.Watch(a.Session.Current())
}

func (a *App) Close() error {
	if a.stopPolling != nil {
		a.stopPolling()
	}
	if a.Poller != nil {
		a.Poller.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) Logger() *slog.Logger {
	return a.log
}
