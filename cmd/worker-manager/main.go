// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ican-workers/internal/allocation"
	"ican-workers/internal/api"
	"ican-workers/internal/audit"
	"ican-workers/internal/common/aws"
	"ican-workers/internal/common/camunda"
	"ican-workers/internal/common/config"
	"ican-workers/internal/common/database"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/observability"
	"ican-workers/internal/common/validation"
	"ican-workers/internal/membership"
	"ican-workers/internal/notify"
	"ican-workers/internal/oracle"
	"ican-workers/internal/ratelock"
	"ican-workers/internal/store/postgres"
	"ican-workers/pkg/registry"

	// Governance Workers (5)
	aaa "ican-workers/internal/workers/governance/admin-approve-application"
	ara "ican-workers/internal/workers/governance/admin-reject-application"
	cv "ican-workers/internal/workers/governance/cast-vote"
	gvt "ican-workers/internal/workers/governance/get-vote-tally"
	sa "ican-workers/internal/workers/governance/submit-application"

	// Investment Workers (3)
	cra "ican-workers/internal/workers/investment/check-and-reserve-allocation"
	fa "ican-workers/internal/workers/investment/finalize-allocation"
	sta "ican-workers/internal/workers/investment/settle-allocation"

	// Exchange Workers (3)
	cc "ican-workers/internal/workers/exchange/calculate-conversion"
	crl "ican-workers/internal/workers/exchange/consume-rate-lock"
	ler "ican-workers/internal/workers/exchange/lock-exchange-rate"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("observability init failed, job meters disabled", zap.Error(err))
	}

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda), log)
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := postgres.Migrate(ctx, pg.GetDB()); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
		zapLog.Info("Database schema applied")
	}
	store := postgres.New(pg.GetDB())

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Audit mirror (Elasticsearch) ---
	var (
		mirror  audit.Mirror       = audit.NopMirror{}
		trail   api.AuditTrail     = postgresTrail{db: store}
		indexer *audit.Indexer
		esCheck api.Check
	)
	if cfg.Audit.MirrorEnabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		if err := esClient.EnsureIndex(ctx, cfg.Audit.Index, audit.IndexMapping); err != nil {
			zapLog.Fatal("audit index setup failed", zap.Error(err))
		}
		indexer = audit.NewIndexer(esClient.Client, cfg.Audit.Index, cfg.Audit.Timeout, log)
		mirror, trail, esCheck = indexer, indexer, esClient.Ping
		zapLog.Info("Elasticsearch audit mirror enabled", zap.String("index", cfg.Audit.Index))
	}

	// --- Notifications (SNS + SES) ---
	var (
		notifier   notify.Notifier = notify.Nop{}
		dispatcher *notify.Dispatcher
	)
	if cfg.Notifications.Enabled {
		opts := notify.Options{
			Contacts:  notify.NewPostgresContacts(pg.GetDB()),
			Timeout:   cfg.Notifications.Timeout,
			QueueSize: cfg.Notifications.QueueSize,
			Logger:    log,
		}
		region := cfg.Notifications.AWS.Region
		if cfg.Notifications.SNS.Enabled {
			sns, err := aws.NewSNSClient(ctx, region, cfg.Notifications.SNS.TopicARN)
			if err != nil {
				zapLog.Fatal("sns client init failed", zap.Error(err))
			}
			opts.Publisher = sns
		}
		if cfg.Notifications.Email.Enabled {
			ses, err := aws.NewSESClient(ctx, region, cfg.Notifications.Email.FromEmail)
			if err != nil {
				zapLog.Fatal("ses client init failed", zap.Error(err))
			}
			opts.Email = ses
		}
		dispatcher, err = notify.NewDispatcher(opts)
		if err != nil {
			zapLog.Fatal("notification dispatcher init failed", zap.Error(err))
		}
		notifier = dispatcher
		zapLog.Info("Notification dispatcher started")
	}

	// --- Price oracle: HTTP -> Redis quote cache, Redis last-known-good ---
	var priceOracle oracle.PriceOracle
	if cfg.Oracle.BaseURL != "" {
		priceOracle = oracle.NewCachedOracle(
			oracle.NewHTTPOracle(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Oracle.Timeout),
			rdb.GetClient(), cfg.RateLock.QuoteCacheTTL, log,
		)
	} else {
		zapLog.Warn("oracle base_url not set, rate locks use last known good or default rates")
	}

	policies, err := pairPolicies(cfg.RateLock)
	if err != nil {
		zapLog.Fatal("invalid rate lock pairs", zap.Error(err))
	}
	countryRates, err := countries(cfg.RateLock)
	if err != nil {
		zapLog.Fatal("invalid rate lock countries", zap.Error(err))
	}

	// --- Core engines ---
	threshold, _ := decimal.NewFromString(cfg.Governance.ApprovalThreshold)
	capRatio, _ := decimal.NewFromString(cfg.Allocation.CapRatio)

	members := membership.NewManager(membership.Options{
		Store:         store.Membership(),
		Notifier:      notifier,
		Mirror:        mirror,
		Logger:        log,
		Threshold:     threshold,
		MaxTextLength: cfg.Governance.MaxApplicationTextLen,
	})
	rates := ratelock.NewManager(ratelock.Options{
		Store:     store.RateLock(),
		Oracle:    priceOracle,
		History:   oracle.NewPriceHistory(rdb.GetClient(), cfg.RateLock.LastKnownGoodTTL),
		Policies:  policies,
		Countries: countryRates,
		TTL:       cfg.RateLock.TTL,
		Logger:    log,
	})
	enforcer := allocation.NewEnforcer(allocation.Options{
		Store:              store.Allocation(),
		Rates:              rates,
		Notifier:           notifier,
		Mirror:             mirror,
		Logger:             log,
		CapRatio:           capRatio,
		SettlementCurrency: cfg.Allocation.SettlementCurrency,
		PriceCurrency:      cfg.Allocation.PriceCurrency,
	})

	schemas := validation.NewSchemaValidator()
	if err := registry.Catalog().RegisterSchemas(schemas); err != nil {
		zapLog.Fatal("activity schemas failed to compile", zap.Error(err))
	}

	// --- START: Register ALL 11 Workers ---
	handlers := make([]camunda.Handler, 0, 11)
	add := func(h camunda.Handler, err error) {
		if err != nil {
			zapLog.Fatal("worker init failed", zap.Error(err))
		}
		handlers = append(handlers, h)
	}

	// --- 1. Governance Workers (5) ---
	add(sa.NewHandler(sa.HandlerOptions{AppConfig: cfg, Service: members, Schemas: schemas, Observability: obs, Logger: log}))
	add(aaa.NewHandler(aaa.HandlerOptions{AppConfig: cfg, Service: members, Schemas: schemas, Observability: obs, Logger: log}))
	add(ara.NewHandler(ara.HandlerOptions{AppConfig: cfg, Service: members, Schemas: schemas, Observability: obs, Logger: log}))
	add(cv.NewHandler(cv.HandlerOptions{AppConfig: cfg, Service: members, Schemas: schemas, Observability: obs, Logger: log}))
	add(gvt.NewHandler(gvt.HandlerOptions{AppConfig: cfg, Service: members, Schemas: schemas, Observability: obs, Logger: log}))

	// --- 2. Investment Workers (3) ---
	add(cra.NewHandler(cra.HandlerOptions{AppConfig: cfg, Service: enforcer, Schemas: schemas, Observability: obs, Logger: log}))
	add(fa.NewHandler(fa.HandlerOptions{AppConfig: cfg, Service: enforcer, Schemas: schemas, Observability: obs, Logger: log}))
	add(sta.NewHandler(sta.HandlerOptions{AppConfig: cfg, Service: enforcer, Schemas: schemas, Observability: obs, Logger: log}))

	// --- 3. Exchange Workers (3) ---
	add(ler.NewHandler(ler.HandlerOptions{AppConfig: cfg, Service: rates, Schemas: schemas, Observability: obs, Logger: log}))
	add(cc.NewHandler(cc.HandlerOptions{AppConfig: cfg, Service: rates, Schemas: schemas, Observability: obs, Logger: log}))
	add(crl.NewHandler(crl.HandlerOptions{AppConfig: cfg, Service: rates, Schemas: schemas, Observability: obs, Logger: log}))

	var jobWorkers []worker.JobWorker
	for _, h := range handlers {
		taskType := h.Runner().TaskType()
		if w := camunda.StartWorker(zeebe.GetClient(), h, config.GetWorkerConfig(cfg, taskType), log); w != nil {
			jobWorkers = append(jobWorkers, w)
		}
	}
	zapLog.Info("Workers registered", zap.Int("started", len(jobWorkers)), zap.Int("total", len(handlers)))

	// --- Health, Metrics & API Server ---
	checks := map[string]api.Check{
		"postgres": pg.Ping,
		"redis":    rdb.Ping,
		"zeebe":    zeebe.HealthCheck,
	}
	if esCheck != nil {
		checks["elasticsearch"] = esCheck
	}
	server := api.NewServer(api.Options{
		Governance:   members,
		Allocations:  enforcer,
		RateLocks:    rates,
		Audit:        trail,
		Checks:       checks,
		APIEnabled:   cfg.HTTP.APIEnabled,
		RateLimitRPS: cfg.HTTP.RateLimitRPS,
		RateBurst:    cfg.HTTP.RateBurst,
		Logger:       log,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.HTTP.Address), zap.Bool("api", cfg.HTTP.APIEnabled))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Background maintenance ---
	bgCtx, stopBackground := context.WithCancel(ctx)
	go expireStaleLocks(bgCtx, rates, time.Minute, log)
	if limiter := server.Limiter(); limiter != nil {
		go sweepLimiters(bgCtx, limiter, 5*time.Minute)
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	stopBackground()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range jobWorkers {
		w.Close()
		w.AwaitClose()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if dispatcher != nil {
		if err := dispatcher.Close(shutdownCtx); err != nil {
			zapLog.Warn("notification queue not drained", zap.Error(err))
		}
	}
	if indexer != nil {
		indexer.Wait()
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("observability shutdown failed", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped")
}

// expireStaleLocks marks overdue rate locks expired until ctx is done.
func expireStaleLocks(ctx context.Context, rates *ratelock.Manager, every time.Duration, log logger.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := rates.ExpireStale(ctx)
			if err != nil {
				log.Warn("expire stale rate locks failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			if n > 0 {
				log.Info("expired stale rate locks", map[string]interface{}{"count": n})
			}
		}
	}
}

func sweepLimiters(ctx context.Context, limiter *api.RateLimiter, idle time.Duration) {
	ticker := time.NewTicker(idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep(idle)
		}
	}
}
