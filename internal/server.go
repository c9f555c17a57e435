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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/pilatesloop/backend/internal/auth"
	"github.com/pilatesloop/backend/internal/community"
	"github.com/pilatesloop/backend/internal/config"
	"github.com/pilatesloop/backend/internal/db"
	"github.com/pilatesloop/backend/internal/middleware"
	"github.com/pilatesloop/backend/internal/misc"
	"github.com/pilatesloop/backend/internal/studios"
	"github.com/pilatesloop/backend/internal/syncqueue"
	"github.com/pilatesloop/backend/internal/telemetry/metrics"
	metricsmiddleware "github.com/pilatesloop/backend/internal/telemetry/metrics/middleware"
	"github.com/pilatesloop/backend/internal/telemetry/tracing"
	"github.com/pilatesloop/backend/internal/workoutlog"
	"github.com/pilatesloop/backend/internal/workoutstats"
)

const syncQueueInterval = 5 * time.Minute

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	mobileAppSecret   string // used by the companion mobile client sync agent
	versionInfo       string

	config *config.Config
	dbPool *pgxpool.Pool

	redisClient  *redis.Client
	loginChecker *auth.LoginChecker
	authService  *auth.Service

	syncQueue       *syncqueue.Queue
	syncQueueCancel context.CancelFunc

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	MobileAppSecret         string
	VersionInfo             string
	AdminUsername           string
	AdminPasswordHash       string
	RedisPassword           string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": "pilatesloop_db"},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("backend", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	authService := auth.NewAuthService(&auth.Admin{
		Username:     params.AdminUsername,
		PasswordHash: params.AdminPasswordHash,
	}, auth.DefaultTTL, rdb)
	go func() {
		for range time.Tick(time.Hour * 8) {
			authService.ScanAndClean(ctx)
		}
	}()

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "pilatesloop-backend")
	if err != nil {
		return nil, err
	}

	statsAggregator := workoutstats.NewAggregator(workoutstats.NewRepo(dbPool), metricsManager)
	syncCommitter := workoutlog.NewCommitter(workoutlog.NewRepo(dbPool), statsAggregator)
	syncQueue := syncqueue.NewQueue(
		syncqueue.NewRedisStore(rdb),
		syncCommitter,
		metricsManager,
		params.Config.SyncQueueWarnAfterAttempts,
	)

	s := &Server{
		config:          params.Config,
		dbPool:          dbPool,
		mobileAppSecret: params.MobileAppSecret,
		versionInfo:     params.VersionInfo,

		redisClient:  rdb,
		authService:  authService,
		loginChecker: auth.NewLoginChecker(rdb),

		syncQueue: syncQueue,

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}

	return s, nil
}

func (s *Server) routerSetup() (*mux.Router, error) {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	communityService := community.NewService(community.NewRepo(s.dbPool))
	communityHandler := community.NewHandler(communityService)
	r.HandleFunc("/community/posts", communityHandler.HandleAdd).Methods("POST", "OPTIONS").Name("new-post")
	r.HandleFunc("/community/posts/page/{page}/size/{size}", communityHandler.HandleList).Methods("GET", "OPTIONS").Name("list-posts")
	r.HandleFunc("/community/posts/{id}", communityHandler.HandleDelete).Methods("DELETE", "OPTIONS").Name("remove-post")

	logsRepo := workoutlog.NewRepo(s.dbPool)
	workoutsHandler := workoutlog.NewHandler(logsRepo, communityService, communityService, s.metricsManager)
	r.HandleFunc("/workouts", workoutsHandler.HandleAdd).Methods("POST", "OPTIONS").Name("new-workout")
	r.HandleFunc("/workouts/page/{page}/size/{size}", workoutsHandler.HandleList).Methods("GET", "OPTIONS").Name("list-workouts")
	r.HandleFunc("/workouts/{id}", workoutsHandler.HandleGet).Methods("GET", "OPTIONS").Name("get-workout")
	r.HandleFunc("/workouts/{id}", workoutsHandler.HandleDelete).Methods("DELETE", "OPTIONS").Name("delete-workout")
	r.HandleFunc("/workouts/{id}/share", workoutsHandler.HandleShare).Methods("POST", "OPTIONS").Name("share-workout")
	r.HandleFunc("/workouts/{id}/share", workoutsHandler.HandleUnshare).Methods("DELETE", "OPTIONS").Name("unshare-workout")

	statsAggregator := workoutstats.NewAggregator(workoutstats.NewRepo(s.dbPool), s.metricsManager)
	statsHandler := workoutstats.NewHandler(statsAggregator)
	r.HandleFunc("/stats", statsHandler.HandleGetStats).Methods("GET", "OPTIONS").Name("get-stats")
	r.HandleFunc("/stats/streak", statsHandler.HandleGetStreak).Methods("GET", "OPTIONS").Name("get-streak")
	r.HandleFunc("/stats/weekly-progress", statsHandler.HandleWeeklyProgress).Methods("GET", "OPTIONS").Name("get-weekly-progress")

	syncHandler := syncqueue.NewHandler(s.syncQueue)
	r.HandleFunc("/sync/workouts", syncHandler.HandleEnqueue).Methods("POST", "OPTIONS").Name("enqueue-workout")
	r.HandleFunc("/sync/queue", syncHandler.HandleGetQueue).Methods("GET", "OPTIONS").Name("get-sync-queue")
	r.HandleFunc("/sync/queue/{id}", syncHandler.HandleAbandon).Methods("DELETE", "OPTIONS").Name("abandon-sync-entry")
	r.HandleFunc("/sync/run", syncHandler.HandleTriggerSync).Methods("POST", "OPTIONS").Name("trigger-sync")

	studiosHandler := studios.NewHandler(studios.NewRepo(s.dbPool))
	r.HandleFunc("/studios", studiosHandler.HandleAdd).Methods("POST", "OPTIONS").Name("new-studio")
	r.HandleFunc("/studios", studiosHandler.HandleUpdate).Methods("PUT", "OPTIONS").Name("update-studio")
	r.HandleFunc("/studios", studiosHandler.HandleList).Methods("GET", "OPTIONS").Name("list-studios")
	r.HandleFunc("/studios/{id}", studiosHandler.HandleGet).Methods("GET", "OPTIONS").Name("get-studio")
	r.HandleFunc("/studios/{id}", studiosHandler.HandleDelete).Methods("DELETE", "OPTIONS").Name("delete-studio")

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	miscHandler := misc.NewHandler(s.versionInfo, s.authService)
	miscHandler.SetupRoutes(r, reqRateLimiter, s.metricsManager, s.config.LoginRateLimitAllowedPerMin)

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(
		s.mobileAppSecret,
		s.loginChecker,
	)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r, nil
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	router, err := s.routerSetup()
	if err != nil {
		log.Fatalf("failed to setup router: %s", err)
	}

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", metricsmiddleware.
		New(s.promRegistry, nil).
		WrapHandler("/metrics", promhttp.HandlerFor(
			s.promRegistry,
			promhttp.HandlerOpts{}),
		))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	syncCtx, syncCancel := context.WithCancel(ctx)
	s.syncQueueCancel = syncCancel
	go s.syncQueue.Run(syncCtx, syncQueueInterval)
	// drain whatever piled up while the service was down
	s.syncQueue.Notify(syncqueue.TriggerColdStart)

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

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	if s.syncQueueCancel != nil {
		s.syncQueueCancel()
	}

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

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
