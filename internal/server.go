package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/icheme/portfolio/internal/auth"
	"github.com/icheme/portfolio/internal/cache"
	"github.com/icheme/portfolio/internal/config"
	"github.com/icheme/portfolio/internal/cv"
	"github.com/icheme/portfolio/internal/dashboard"
	"github.com/icheme/portfolio/internal/db"
	"github.com/icheme/portfolio/internal/images"
	"github.com/icheme/portfolio/internal/messages"
	"github.com/icheme/portfolio/internal/middleware"
	"github.com/icheme/portfolio/internal/notifications"
	"github.com/icheme/portfolio/internal/projects"
	"github.com/icheme/portfolio/internal/storage"
	"github.com/icheme/portfolio/internal/telemetry/metrics"
	"github.com/icheme/portfolio/internal/telemetry/tracing"
	"github.com/icheme/portfolio/pkg"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config       *config.Config
	dbPool       *pgxpool.Pool
	redisClient  *redis.Client
	storage      storage.Api
	diskStorage  *storage.DiskApi // nil unless the disk backend is used
	contentCache *cache.ContentCache
	authService  *auth.Service
	notifier     *notifications.Notifier

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	DBPassword              string
	RedisPassword           string
	StorageServiceKey       string
	SMTPPassword            string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config
	dbParams := db.NewDBPoolParams{
		DBHost:         cfg.PostgresHost,
		DBPort:         cfg.PostgresPort,
		DBName:         cfg.PostgresDBName,
		DBUser:         cfg.PostgresUser,
		DBPassword:     params.DBPassword,
		TracingEnabled: params.HoneycombTracingEnabled,
	}

	if cfg.AutoMigrate {
		if _, err := db.Migrate(db.ConnString(dbParams)); err != nil {
			return nil, fmt.Errorf("migrate db: %w", err)
		}
	}

	dbPool, err := db.NewDBPool(ctx, dbParams)
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": cfg.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("portfolio", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "portfolio-backend", rdb)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:       cfg,
		dbPool:       dbPool,
		redisClient:  rdb,
		versionInfo:  params.VersionInfo,
		contentCache: cache.NewContentCache(cfg.ContentCacheSize, cfg.ContentCacheTTL),
		authService: auth.NewService(
			auth.NewCredentialStore(dbPool),
			auth.NewSessionStore(dbPool),
			cfg.SessionTTL,
		),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}

	switch cfg.StorageBackend {
	case "bucket":
		tracedHttpClient := &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   time.Minute,
		}
		s.storage, err = storage.NewBucketApi(cfg.StorageURL, params.StorageServiceKey, tracedHttpClient)
	default:
		s.diskStorage, err = storage.NewDiskApi(cfg.DiskStorageRoot, cfg.DiskStoragePublicURL)
		s.storage = s.diskStorage
	}
	if err != nil {
		return nil, fmt.Errorf("create %s storage: %w", cfg.StorageBackend, err)
	}

	var sender notifications.Sender = notifications.NoopSender{}
	if cfg.SMTPHost != "" {
		sender = notifications.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, params.SMTPPassword, cfg.SMTPFromName)
	} else {
		log.Warnln("smtp host not set, emails will only be logged")
	}
	s.notifier, err = notifications.NewNotifier(sender, cfg.AdminEmail, cfg.SiteURL, cfg.SMTPFromName, metricsManager)
	if err != nil {
		return nil, fmt.Errorf("create notifier: %w", err)
	}

	return s, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("portfolio-router"))

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)

	authHandler := auth.NewHandler(s.authService, s.metricsManager, s.config.CookieSecure)
	authHandler.SetupRoutes(r, middleware.RateLimit(
		reqRateLimiter, "login", s.config.LoginRateLimitAllowedPerMin, s.metricsManager,
	))

	projectsRepo := projects.NewRepo(s.dbPool)
	messagesRepo := messages.NewRepo(s.dbPool)
	cvRepo := cv.NewRepo(s.dbPool)

	imageUploader := images.NewUploader(
		s.storage,
		s.config.ProjectImagesBucket,
		s.config.MaxImageDimension,
		s.config.MaxUploadSize,
		s.metricsManager,
	)
	images.NewHandler(imageUploader).SetupRoutes(r)

	projects.NewHandler(projectsRepo, imageUploader, s.contentCache, s.config.MaxUploadSize).SetupRoutes(r)

	messagesHandler := messages.NewHandler(
		messagesRepo,
		messages.NewRedisDuplicateGuard(s.redisClient, messages.DefaultDuplicateWindow),
		s.notifier,
		s.metricsManager,
	)
	messagesHandler.SetupRoutes(r, middleware.RateLimit(
		reqRateLimiter, "contact", s.config.ContactRateLimitAllowedPerMin, s.metricsManager,
	))

	cv.NewHandler(
		cvRepo,
		s.storage,
		s.contentCache,
		s.config.CVBucket,
		s.config.MaxUploadSize,
		s.metricsManager,
	).SetupRoutes(r)

	dashboard.NewHandler(projectsRepo, messagesRepo, cvRepo, s.contentCache).SetupRoutes(r)

	if s.diskStorage != nil {
		r.PathPrefix("/files/").
			Handler(http.StripPrefix("/files", s.diskStorage.FileHandler())).
			Methods("GET").
			Name("files")
	}

	r.HandleFunc("/", s.handleRoot).Methods("GET").Name("root")

	// all the rest: unhandled paths, and methods a route does not accept
	// (so CORS preflight requests still pass through the middlewares)
	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pkg.WriteJSONError(w, http.StatusNotFound, "Not found")
	}).Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.authService)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.AllowedOrigins))
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	message := "I'm OK"
	if s.versionInfo != "" {
		message = fmt.Sprintf("I'm OK, version: %s", s.versionInfo)
	}
	pkg.WriteJSONOK(w, pkg.OK(message))
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      s.routerSetup(),
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", metrics.Handler(s.promRegistry))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	go s.cleanExpiredSessions(ctx, s.config.SessionCleanInterval)

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) cleanExpiredSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.authService.CleanExpired(ctx)
			if err != nil {
				log.Errorf("clean expired sessions: %s", err)
				continue
			}
			s.metricsManager.CounterExpiredSessions.Add(float64(removed))
			log.Debugf("expired sessions removed: %d", removed)
		}
	}
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown http server")
		}
		log.Warnln("server shut down")
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
		log.Warnln("metrics server shut down")
	}

	log.Debugln("waiting for pending emails ...")
	s.notifier.Wait()

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}
}
