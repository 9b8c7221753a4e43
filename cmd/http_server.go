package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/hospitality-access/internal"
	"github.com/frahmantamala/hospitality-access/internal/access"
	"github.com/frahmantamala/hospitality-access/internal/audit"
	"github.com/frahmantamala/hospitality-access/internal/auth"
	authPostgres "github.com/frahmantamala/hospitality-access/internal/auth/postgres"
	"github.com/frahmantamala/hospitality-access/internal/core/events"
	"github.com/frahmantamala/hospitality-access/internal/permission"
	permissionPostgres "github.com/frahmantamala/hospitality-access/internal/permission/postgres"
	"github.com/frahmantamala/hospitality-access/internal/transport"
	"github.com/frahmantamala/hospitality-access/internal/transport/rest"
	"github.com/frahmantamala/hospitality-access/internal/transport/swagger"
	"github.com/frahmantamala/hospitality-access/internal/user"
	userPostgres "github.com/frahmantamala/hospitality-access/internal/user/postgres"
	"github.com/frahmantamala/hospitality-access/pkg/logger"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer()
	},
}

// Dependencies is the fully wired application. Commands build it through
// initializeDependencies so the CLI and the server share one graph.
type Dependencies struct {
	Config      *internal.Config
	SQL         *sqlx.DB
	DB          *gorm.DB
	Bus         *events.EventBus
	Logger      *slog.Logger
	Hasher      *auth.PasswordHasher
	Auth        *auth.Service
	Users       *user.Service
	Permissions *permission.Service
	AuditStore  *audit.Store
	Engine      *access.Engine
}

func (d *Dependencies) Close() {
	if err := d.SQL.Close(); err != nil {
		d.Logger.Error("database close error", "error", err)
	}
}

func startHTTPServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	if _, err := swagger.Load(ctx); err != nil {
		return err
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, buildHandlers(deps))

	cfg := deps.Config.Server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	purgeCtx, cancelPurge := context.WithCancel(ctx)
	defer cancelPurge()
	go deps.Auth.RunPurger(purgeCtx, deps.Config.Security.SessionPurge)

	serverErrChan := make(chan error, 1)
	go func() {
		deps.Logger.Info("starting HTTP server", "address", server.Addr, "env", deps.Config.Env)
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		deps.Logger.Info("received signal, shutting down")
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		deps.Logger.Error("server shutdown error", "error", err)
	}
	cancelPurge()

	// Audit entries are written by bus handlers; let them land before the
	// pool closes.
	if err := deps.Bus.Drain(shutdownCtx); err != nil {
		deps.Logger.Warn("event bus did not drain", "error", err)
	}

	deps.Logger.Info("server stopped")
	return nil
}

func buildHandlers(deps *Dependencies) rest.Handlers {
	cfg := deps.Config
	base := transport.NewBaseHandler(deps.Logger)
	codec := auth.NewTokenCodec(cfg.Security.TokenSecret, cfg.Security.TokenIssuer, nil)

	return rest.Handlers{
		Base:   base,
		Health: rest.NewHealthHandler(base, map[string]rest.Pinger{"database": deps.SQL}),
		Auth: auth.NewHandler(base, deps.Auth, codec, deps.Permissions, auth.CookieConfig{
			Name:   cfg.Server.CookieName,
			Secure: cfg.Server.CookieSecure,
		}),
		Users:          user.NewHandler(base, deps.Users),
		Permissions:    permission.NewHandler(base, deps.Permissions),
		Audit:          audit.NewHandler(base, deps.AuditStore),
		Authz:          access.NewAuthorization(deps.Engine, base, cfg.Server.LoginPath, cfg.Server.AccessDeniedPath),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	sqlDB, gormDB, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	bus := events.NewEventBus(lg, events.WithConcurrency(cfg.Audit.Workers))
	subscribeChangeLog(bus, lg)

	hasher := auth.NewPasswordHasher(cfg.Security.Password)
	var throttle *auth.LoginThrottle
	if cfg.Security.LoginThrottle.Enabled {
		throttle = auth.NewLoginThrottle(cfg.Security.LoginThrottle, nil)
	}

	userRepo := userPostgres.NewUserRepository(gormDB)
	authService, err := auth.NewService(userRepo, authPostgres.NewSessionRepository(gormDB), hasher, auth.Options{
		SessionLifetime: cfg.Security.SessionLifetime,
		Throttle:        throttle,
	}, lg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	var permRepo permission.RepositoryAPI = permissionPostgres.NewPermissionRepository(gormDB)
	if cfg.PermissionCache.Enabled {
		permRepo = permission.NewCachedStore(permRepo, cfg.PermissionCache.MaxRoles)
	}
	permService := permission.NewService(permRepo, bus, lg, nil)
	if _, err := permService.Catalogue(ctx); err != nil {
		lg.Warn("permission catalogue not loaded at startup", "error", err)
	}

	auditStore := audit.NewStore(sqlDB, cfg.Audit.ListLimit)
	audit.NewRecorder(auditStore, lg).Subscribe(bus)

	var sink audit.Sink = audit.NewBusSink(bus, lg)
	if cfg.Audit.MirrorToLog {
		sink = audit.Tee{sink, audit.NewLogSink(lg)}
	}
	engine := access.NewEngine(authService, permService, sink, lg, access.Options{
		RecordSensitiveSuccess: cfg.Audit.RecordSensitiveSuccess,
	})

	return &Dependencies{
		Config:      cfg,
		SQL:         sqlDB,
		DB:          gormDB,
		Bus:         bus,
		Logger:      lg,
		Hasher:      hasher,
		Auth:        authService,
		Users:       user.NewService(userRepo, hasher, authService, bus, lg),
		Permissions: permService,
		AuditStore:  auditStore,
		Engine:      engine,
	}, nil
}

// subscribeChangeLog writes account and permission changes to the process log.
func subscribeChangeLog(bus *events.EventBus, lg *slog.Logger) {
	handler := func(ctx context.Context, event events.Event) error {
		lg.InfoContext(ctx, "access change",
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"payload", event.Payload())
		return nil
	}
	for _, t := range []string{
		events.EventTypeUserCreated,
		events.EventTypeUserRoleChanged,
		events.EventTypeUserDeactivated,
		events.EventTypeUserReactivated,
		events.EventTypePermissionChanged,
	} {
		bus.Subscribe(t, handler)
	}
}
