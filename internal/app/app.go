// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/crisis-command/internal/auth"
	"github.com/bissquit/crisis-command/internal/bus"
	"github.com/bissquit/crisis-command/internal/config"
	"github.com/bissquit/crisis-command/internal/crisis"
	crisismemory "github.com/bissquit/crisis-command/internal/crisis/memory"
	crisispostgres "github.com/bissquit/crisis-command/internal/crisis/postgres"
	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/bissquit/crisis-command/internal/escalation"
	"github.com/bissquit/crisis-command/internal/notify"
	"github.com/bissquit/crisis-command/internal/notify/chat"
	"github.com/bissquit/crisis-command/internal/notify/email"
	notifypostgres "github.com/bissquit/crisis-command/internal/notify/postgres"
	"github.com/bissquit/crisis-command/internal/notify/sms"
	"github.com/bissquit/crisis-command/internal/pkg/ctxlog"
	"github.com/bissquit/crisis-command/internal/pkg/httputil"
	"github.com/bissquit/crisis-command/internal/pkg/metrics"
	"github.com/bissquit/crisis-command/internal/pkg/postgres"
	"github.com/bissquit/crisis-command/internal/plan"
	planmemory "github.com/bissquit/crisis-command/internal/plan/memory"
	planpostgres "github.com/bissquit/crisis-command/internal/plan/postgres"
	"github.com/bissquit/crisis-command/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config           *config.Config
	logger           *slog.Logger
	db               *pgxpool.Pool
	server           *http.Server
	metricsServer    *http.Server
	metricsCancel    context.CancelFunc
	escalationEngine *escalation.Engine
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	var db *pgxpool.Pool
	if cfg.Storage.Backend == "postgres" {
		connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
		defer connectCancel()

		var err error
		db, err = postgres.Connect(connectCtx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectAttempts: cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	if db != nil {
		go app.collectDBMetrics(metricsCtx)
	}

	router, engine, err := app.setupRouter()
	if err != nil {
		if db != nil {
			db.Close()
		}
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}
	app.escalationEngine = engine

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers and the escalation engine.
func (a *App) Run() error {
	a.escalationEngine.Start(context.Background())

	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Stop the escalation engine first so no tick runs against a closing
	// store.
	if a.escalationEngine != nil {
		a.escalationEngine.Stop()
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if a.db != nil {
		a.db.Close()
	}

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// EscalationEngine returns the engine instance. Used in tests to drive
// evaluation passes directly.
func (a *App) EscalationEngine() *escalation.Engine {
	return a.escalationEngine
}

func (a *App) setupRouter() (*chi.Mux, *escalation.Engine, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	var crisisRepo crisis.Repository
	var planRepo plan.Repository
	if a.config.Storage.Backend == "postgres" {
		crisisRepo = crisispostgres.NewRepository(a.db)
		planRepo = planpostgres.NewRepository(a.db)
	} else {
		crisisRepo = crisismemory.NewRepository()
		planRepo = planmemory.NewRepository()
	}

	publisher := bus.NewLogPublisher()
	crisisService := crisis.NewService(crisisRepo, publisher)

	directory := a.setupDirectory()
	notifier, err := a.setupNotifier(directory, publisher)
	if err != nil {
		return nil, nil, err
	}

	planService := plan.NewService(planRepo, crisisService, directory, publisher)
	crisisService.SetPlanBuilder(planService)

	engine := escalation.NewEngine(escalation.Config{
		Interval:         a.config.Escalation.Interval,
		TimeoutOverrides: parseTimeoutOverrides(a.config.Escalation.Timeouts),
	}, crisisService, notifier, nil)

	authenticator := auth.NewAuthenticator(auth.Config{
		SecretKey:           a.config.JWT.SecretKey,
		AccessTokenDuration: a.config.JWT.AccessTokenDuration,
	})

	crisisHandler := crisis.NewHandler(crisisService, engine)
	planHandler := plan.NewHandler(planService)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.AuthMiddleware(authenticator))

		r.Group(func(r chi.Router) {
			r.Use(httputil.RequireRole(domain.RoleViewer))
			crisisHandler.RegisterViewerRoutes(r)
			planHandler.RegisterViewerRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(httputil.RequireRole(domain.RoleOperator))
			crisisHandler.RegisterOperatorRoutes(r)
			planHandler.RegisterOperatorRoutes(r)
		})
	})

	return r, engine, nil
}

func (a *App) setupDirectory() *notify.CachedDirectory {
	var upstream notify.Directory
	if a.config.Directory.URL != "" {
		upstream = notify.NewHTTPDirectory(a.config.Directory.URL, a.config.Directory.Timeout)
	} else {
		upstream = notify.NewStaticDirectory(staticStakeholders(a.config.Directory.Static))
	}

	var cache notify.CacheRepository
	if a.config.Storage.Backend == "postgres" {
		cache = notifypostgres.NewRepository(a.db)
	} else {
		cache = notify.NewMemoryCache()
	}
	return notify.NewCachedDirectory(upstream, cache, a.config.Directory.CacheTTL)
}

func (a *App) setupNotifier(directory notify.Directory, publisher bus.Publisher) (*notify.Notifier, error) {
	emailSender, err := email.NewSender(email.Config{
		Enabled:      a.config.Notifications.Email.Enabled,
		SMTPHost:     a.config.Notifications.Email.SMTPHost,
		SMTPPort:     a.config.Notifications.Email.SMTPPort,
		SMTPUser:     a.config.Notifications.Email.SMTPUser,
		SMTPPassword: a.config.Notifications.Email.SMTPPassword,
		FromAddress:  a.config.Notifications.Email.FromAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}
	if !a.config.Notifications.Email.Enabled {
		slog.Warn("email sender is disabled: email notifications will not be sent")
	}

	smsSender, err := sms.NewSender(sms.Config{
		Enabled:    a.config.Notifications.SMS.Enabled,
		GatewayURL: a.config.Notifications.SMS.GatewayURL,
		APIKey:     a.config.Notifications.SMS.APIKey,
		From:       a.config.Notifications.SMS.From,
		RateLimit:  a.config.Notifications.SMS.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("create sms sender: %w", err)
	}

	// Chat is always available: the webhook URL lives in the stakeholder
	// contact record.
	chatSender := chat.NewSender(chat.Config{
		Username: a.config.Notifications.Chat.Username,
		IconURL:  a.config.Notifications.Chat.IconURL,
	})

	senders := map[domain.ChannelType]notify.Sender{
		domain.ChannelTypeEmail: emailSender,
		domain.ChannelTypeSMS:   smsSender,
		domain.ChannelTypeChat:  chatSender,
	}
	return notify.NewNotifier(directory, senders, publisher), nil
}

func staticStakeholders(configs []config.StakeholderConfig) []*domain.Stakeholder {
	stakeholders := make([]*domain.Stakeholder, 0, len(configs))
	for _, sc := range configs {
		s := &domain.Stakeholder{
			ID:        sc.ID,
			Name:      sc.Name,
			Role:      sc.Role,
			Authority: domain.Authority(sc.Authority),
		}
		for _, cc := range sc.Contacts {
			s.ContactInfo = append(s.ContactInfo, domain.ContactPoint{
				Channel: domain.ChannelType(cc.Channel),
				Target:  cc.Target,
			})
		}
		stakeholders = append(stakeholders, s)
	}
	return stakeholders
}

func parseTimeoutOverrides(timeouts map[string]time.Duration) map[domain.Severity]time.Duration {
	if len(timeouts) == 0 {
		return nil
	}
	out := make(map[domain.Severity]time.Duration, len(timeouts))
	for severity, timeout := range timeouts {
		out[domain.Severity(severity)] = timeout
	}
	return out
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		httputil.Text(w, http.StatusOK, "OK")
		return
	}

	if err := postgres.Ready(r.Context(), a.db, 2*time.Second); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
