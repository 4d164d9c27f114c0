// Package app собирает сервис заказов: хранилища, менеджер жизненного цикла,
// HTTP API, ops-сервер и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

const shutdownTimeout = 5 * time.Second

// application: собранный сервис, готовый к запуску.
type application struct {
	cfg      Config
	logger   *log.Entry
	deps     *Dependencies
	manager  *lifecycle.Manager
	kafka    *kafkaBridge
	api      http.Handler
	ops      http.Handler
	workers  []func(context.Context)
}

// newApplication собирает сервис. Метрики регистрируются в reg и отдаются из gatherer.
func newApplication(ctx context.Context, cfg Config, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	policy, err := domain.PolicyByName(cfg.TransitionPolicy)
	if err != nil {
		return nil, err
	}

	logger := log.WithField("component", "app")
	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &application{cfg: cfg, logger: logger, deps: deps}
	if err := a.wire(policy, reg, gatherer); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *application) wire(policy domain.TransitionPolicy, reg prometheus.Registerer, gatherer prometheus.Gatherer) error {
	// Ошибка уже залогирована: без брокера сервис продолжает работать.
	bridge, _ := connectKafka(a.cfg.KafkaBrokers, a.cfg.KafkaClientID, a.logger)
	a.kafka = bridge

	// Без брокера in-memory outbox только копит события: отключаем его.
	outboxRepo := a.deps.Outbox
	if bridge == nil && a.cfg.StorageDriver != StorageDriverPostgres {
		outboxRepo = nil
	}

	opts := []lifecycle.Option{
		lifecycle.WithPolicy(policy),
		lifecycle.WithProductLookup(a.deps.Products),
		lifecycle.WithNotifier(a.deps.Notifier),
		lifecycle.WithMetrics(metrics.NewOrderMetricsWithRegisterer(reg)),
		lifecycle.WithLogger(a.logger.WithField("component", "order-lifecycle")),
	}
	if outboxRepo != nil {
		opts = append(opts, lifecycle.WithOutbox(outboxRepo))
	}

	var err error
	a.manager, err = lifecycle.NewManager(lifecycle.Dependencies{
		Orders:   a.deps.Orders,
		Catalog:  a.deps.Catalog,
		Carts:    a.deps.Carts,
		Profiles: a.deps.Profiles,
	}, opts...)
	if err != nil {
		return err
	}

	auth, err := httpapi.NewAuthenticator(a.cfg.JWTSecret, a.cfg.JWTIssuer)
	if err != nil {
		return err
	}

	a.api = httpapi.NewRouter(httpapi.RouterConfig{
		Orders:         httpapi.NewOrderHandler(a.manager, a.logger.WithField("component", "http-orders")),
		Auth:           auth,
		Idempotency:    httpapi.NewIdempotency(a.deps.Idempotency, a.cfg.IdempotencyTTL, a.logger.WithField("component", "http-idempotency")),
		Metrics:        metrics.NewHTTPMetrics(reg),
		Logger:         a.logger.WithField("component", "http"),
		RequestTimeout: a.cfg.RequestTimeout,
	})
	a.ops = newOpsMux(a.deps.Health, gatherer)

	if bridge != nil && outboxRepo != nil {
		relay := outbox.NewRelay(outboxRepo, bridge.events,
			outbox.WithDLQPublisher(bridge.deadLetters),
			outbox.WithMetrics(metrics.NewOutboxMetrics(reg)),
			outbox.WithLogger(a.logger.WithField("component", "outbox-relay")),
			outbox.WithPollInterval(a.cfg.OutboxPollInterval),
			outbox.WithBatchSize(a.cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(a.cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(a.cfg.OutboxRetryDelay),
		)
		a.workers = append(a.workers, relay.Run)
	} else if outboxRepo != nil {
		a.logger.Warn("kafka is not configured, order events stay pending in outbox")
	}

	sweeper := idempotency.NewSweeper(a.deps.Idempotency,
		idempotency.WithInterval(a.cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(a.cfg.IdempotencyCleanupBatchSize),
		idempotency.WithMetrics(metrics.NewIdempotencyMetrics(reg)),
		idempotency.WithLogger(a.logger.WithField("component", "idempotency-sweeper")),
	)
	a.workers = append(a.workers, sweeper.Run)

	return nil
}

func (a *application) close() {
	a.kafka.close()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.deps.Close(ctx)
}

// Run запускает сервис и блокируется до отмены ctx или ошибки HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	a, err := newApplication(ctx, cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		return err
	}
	defer a.close()

	return a.serve(ctx)
}

func (a *application) serve(ctx context.Context) error {
	workersCtx, stopWorkers := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, run := range a.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(workersCtx)
		}()
	}
	stop := func() {
		stopWorkers()
		wg.Wait()
	}

	opsSrv := startOpsServer(ctx, a.cfg.MetricsAddr, a.ops, a.logger)
	apiSrv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.api,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("HTTP API слушает %s", a.cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, a.logger)
		stop()
		shutdownHTTP(opsSrv, a.logger)
		return ctx.Err()
	case err := <-errCh:
		stop()
		shutdownHTTP(opsSrv, a.logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func newOpsMux(monitor *health.Monitor, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", monitor)
	mux.HandleFunc("/readyz", monitor.Ready)
	mux.HandleFunc("/livez", health.Live)
	return mux
}

// startOpsServer запускает HTTP-сервер метрик и health checks.
func startOpsServer(ctx context.Context, addr string, handler http.Handler, logger *log.Entry) *http.Server {
	if addr == "" {
		return nil
	}

	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("ops server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
