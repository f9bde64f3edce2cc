package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	apprhandler "veriflow/internal/approval/handler"
	apprmetrics "veriflow/internal/approval/metrics"
	apprservice "veriflow/internal/approval/service"
	apprstore "veriflow/internal/approval/store"
	"veriflow/internal/audit"
	httpapi "veriflow/internal/http"
	"veriflow/internal/notify"
	obhandler "veriflow/internal/onboarding/handler"
	observice "veriflow/internal/onboarding/service"
	obstore "veriflow/internal/onboarding/store"
	"veriflow/internal/platform/config"
	"veriflow/internal/platform/httpserver"
	"veriflow/internal/platform/logger"
	"veriflow/internal/platform/metrics"
	platformredis "veriflow/internal/platform/redis"
	"veriflow/internal/registry"
	"veriflow/internal/reviewerauth"
	tokenservice "veriflow/internal/token/service"
	tokenstore "veriflow/internal/token/store"
	valcache "veriflow/internal/validation/cache"
	valhandler "veriflow/internal/validation/handler"
	valmetrics "veriflow/internal/validation/metrics"
	valservice "veriflow/internal/validation/service"
	"veriflow/pkg/platform/circuit"
	"veriflow/pkg/platform/tx"
)

// main wires the dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage backends. No postgres URL means in-memory everything, which is
	// enough for local development.
	var db *sql.DB
	if cfg.Postgres.URL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Audit pipeline: publisher -> worker -> store (+ optional Kafka sink).
	auditPublisher := audit.NewPublisher(log, 0)
	var auditStore audit.Store
	if db != nil {
		auditStore = audit.NewPostgresStore(db)
	} else {
		auditStore = audit.NewInMemoryStore()
	}
	var auditSink audit.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("connect kafka audit sink", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		auditSink = kafkaSink
	}
	auditWorker := audit.NewWorker(auditPublisher, auditStore, auditSink, log)

	// Registry clients with sliding-window rate limiting and a circuit
	// breaker that fails fast during registry outages.
	companyRegistry := registry.WithBreaker(
		registry.NewHTTPClient("kvk", cfg.Registries.CompanyBaseURL,
			cfg.Validation.RegistryTimeout,
			registry.NewSlidingWindowLimiter(cfg.Registries.RateLimit, cfg.Registries.RateLimitWindow)),
		circuit.New("kvk"), log)
	taxRegistry := registry.WithBreaker(
		registry.NewHTTPClient("vies", cfg.Registries.TaxBaseURL,
			cfg.Validation.RegistryTimeout,
			registry.NewSlidingWindowLimiter(cfg.Registries.RateLimit, cfg.Registries.RateLimitWindow)),
		circuit.New("vies"), log)

	// Validation cache.
	var cacheStore valservice.Store
	if redisClient != nil {
		cacheStore = valcache.NewRedis(redisClient.Client)
	} else {
		cacheStore = valcache.NewInMemory()
	}
	validation := valservice.New(companyRegistry, taxRegistry, cacheStore,
		valservice.Config{
			CompanyTTL:        cfg.Validation.CompanyTTL,
			TaxTTL:            cfg.Validation.TaxTTL,
			RegistryTimeout:   cfg.Validation.RegistryTimeout,
			MaxBatchSize:      cfg.Validation.MaxBatchSize,
			LookupConcurrency: cfg.Validation.LookupConcurrency,
		},
		valservice.WithLogger(log),
		valservice.WithMetrics(valmetrics.New()),
	)

	// Confirmation tokens.
	var tokStore tokenservice.Store
	if redisClient != nil {
		tokStore = tokenstore.NewRedis(redisClient.Client)
	} else {
		tokStore = tokenstore.NewInMemory()
	}
	tokens, err := tokenservice.New(tokStore, cfg.Tokens.TTL, log)
	if err != nil {
		log.Error("build token service", "error", err)
		os.Exit(1)
	}

	// Workflow and approval stores share the database so decisions commit
	// atomically.
	var (
		workflowStore observice.Store
		approvalStore apprservice.Store
		runner        tx.Runner = tx.PassthroughRunner{}
	)
	if db != nil {
		workflowStore = obstore.NewPostgres(db)
		approvalStore = apprstore.NewPostgres(db)
		runner = tx.NewSQLRunner(db)
	} else {
		workflowStore = obstore.NewInMemory()
		approvalStore = apprstore.NewInMemory()
	}

	onboarding, err := observice.New(workflowStore, validation, tokens, nil, notify.NewLogNotifier(log),
		observice.WithAuditor(auditPublisher),
		observice.WithLogger(log),
	)
	if err != nil {
		log.Error("build onboarding service", "error", err)
		os.Exit(1)
	}

	approvals, err := apprservice.New(approvalStore, onboarding, runner,
		apprservice.WithAuditTrail(auditStore),
		apprservice.WithAuditor(auditPublisher),
		apprservice.WithLogger(log),
		apprservice.WithMetrics(apprmetrics.New()),
	)
	if err != nil {
		log.Error("build approval service", "error", err)
		os.Exit(1)
	}
	onboarding.SetApprovals(approvals)

	jwtService := reviewerauth.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)

	healthChecks := map[string]httpapi.HealthChecker{}
	if db != nil {
		healthChecks["postgres"] = func() error { return db.Ping() }
	}
	if redisClient != nil {
		healthChecks["redis"] = func() error { return redisClient.Health(context.Background()) }
	}

	router := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		Metrics:        metrics.New(),
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Handlers: []httpapi.Registrar{
			valhandler.New(validation, log),
			obhandler.New(onboarding, log),
			apprhandler.New(approvals, log, jwtService),
		},
		HealthChecks: healthChecks,
	})

	srv := httpserver.New(cfg.HTTP.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting veriflow", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := auditWorker.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := validation.RunSweeper(gctx, cfg.Validation.SweepInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := tokens.RunSweeper(gctx, cfg.Tokens.SweepInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
