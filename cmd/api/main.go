package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"staybook/internal/api"
	"staybook/internal/config"
	"staybook/internal/database"
	"staybook/internal/domain"
	"staybook/internal/events"
	"staybook/internal/export"
	"staybook/internal/google"
	"staybook/internal/logging"
	"staybook/internal/metrics"
	"staybook/internal/models"
	"staybook/internal/repository"
	"staybook/internal/service"
	"staybook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

// storage bundles the booking store with its outbox view.
type storage struct {
	store  domain.Store
	outbox domain.OutboxStore
	db     *database.DB
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := initStorage(cfg, &logger)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	locks := initLockStore(redisClient, &logger)

	bus := events.NewEventBus()
	forwarder := initAMQP(cfg, bus, &logger)
	if forwarder != nil {
		defer func() { _ = forwarder.Close() }()
	}

	opts := service.OptionsFromConfig(cfg.Booking)
	opts.LedgerEnabled = startLedgerWorker(ctx, cfg, st.outbox, redisClient, &logger)

	svc := service.NewReservationService(
		st.store,
		locks,
		bus,
		export.NewExporter(cfg.Exports.Path, &logger),
		opts,
		&logger,
	)

	if err := seedProperties(ctx, svc, &logger); err != nil {
		return err
	}

	startBackups(ctx, cfg, st.db, &logger)
	startMetrics(ctx, cfg, &logger)

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	limiter := api.NewRateLimiter(cfg.API.RateLimit)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, svc, limiter, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}
	httpServer := api.NewHTTPServer(&cfg.API, svc, limiter, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initStorage(cfg *config.Config, logger *zerolog.Logger) (*storage, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn().Msg("using in-memory storage; bookings are lost on restart")
		mem := repository.NewMemoryStore()
		return &storage{store: mem, outbox: mem}, nil
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	return &storage{store: db, outbox: db, db: db}, nil
}

// loadProperties reads the property catalogue. A missing file is not an error.
func loadProperties(logger *zerolog.Logger) ([]config.PropertySeed, error) {
	path := os.Getenv("PROPERTIES_PATH")
	if path == "" {
		path = "configs/properties.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info().Str("properties_path", path).Msg("no properties file, skipping seed")
			return nil, nil
		}
		logger.Error().Err(err).Str("properties_path", path).Msg("read properties")
		return nil, err
	}

	var file struct {
		Properties []config.PropertySeed `yaml:"properties"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		logger.Error().Err(err).Str("properties_path", path).Msg("parse properties")
		return nil, err
	}
	if err := config.ValidatePropertySeeds(file.Properties); err != nil {
		return nil, fmt.Errorf("properties %s: %w", path, err)
	}
	return file.Properties, nil
}

func seedProperties(ctx context.Context, svc *service.ReservationService, logger *zerolog.Logger) error {
	seeds, err := loadProperties(logger)
	if err != nil || len(seeds) == 0 {
		return err
	}

	properties := make([]*models.Property, 0, len(seeds))
	for _, s := range seeds {
		properties = append(properties, s.ToProperty())
	}
	created, err := svc.SeedProperties(ctx, properties)
	if err != nil {
		return fmt.Errorf("seed properties: %w", err)
	}
	logger.Info().Int("created", created).Int("total", len(seeds)).Msg("properties seeded")
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initLockStore prefers Redis so that every API instance shares locks and
// throttling, falling back to process-local state while Redis is unreachable.
func initLockStore(redisClient *redis.Client, logger *zerolog.Logger) domain.LockStore {
	mem := repository.NewMemoryLockStore()
	if redisClient == nil {
		return mem
	}
	return repository.NewFailoverLockStore(repository.NewRedisLockStore(redisClient), mem, logger)
}

func initAMQP(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) *events.AMQPForwarder {
	if cfg.Events.AMQPURL == "" {
		return nil
	}

	forwarder, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp connection failed, events stay in-process")
		return nil
	}
	forwarder.Attach(bus)
	logger.Info().Str("exchange", cfg.Events.Exchange).Msg("amqp event forwarding enabled")
	return forwarder
}

// startLedgerWorker reports whether a worker now drains the outbox. Booking
// writes enqueue ledger tasks only when it does.
func startLedgerWorker(ctx context.Context, cfg *config.Config, outbox domain.OutboxStore, redisClient *redis.Client, logger *zerolog.Logger) bool {
	if !cfg.Worker.Enabled {
		return false
	}
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.LedgerSpreadsheetID == "" {
		logger.Warn().Msg("worker enabled but google ledger is not configured")
		return false
	}

	ledger, err := google.NewLedgerClient(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.LedgerSpreadsheetID, cfg.Google.LedgerSheetName)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without ledger")
		return false
	}
	if err := ledger.TestConnection(ctx); err != nil {
		if email, emailErr := google.ServiceAccountEmail(cfg.Google.GoogleCredentialsFile); emailErr == nil {
			logger.Warn().Err(err).Str("share_with", email).Msg("ledger spreadsheet not reachable")
		} else {
			logger.Warn().Err(err).Msg("ledger spreadsheet not reachable")
		}
	} else {
		if err := ledger.EnsureHeader(ctx); err != nil {
			logger.Warn().Err(err).Msg("write ledger header")
		}
		if err := ledger.WarmUpCache(ctx); err != nil {
			logger.Warn().Err(err).Msg("warm up ledger cache")
		}
		logger.Info().Msg("google sheets ledger connected")
	}

	w := worker.NewLedgerWorker(
		outbox,
		ledger,
		redisClient,
		worker.RetryPolicyFromConfig(cfg.Worker),
		time.Duration(cfg.Worker.PollInterval)*time.Millisecond,
		logger,
	)
	go w.Start(ctx)
	return true
}

func startBackups(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) {
	if !cfg.Backup.Enabled || db == nil {
		return
	}
	backups := database.NewBackupService(db, cfg.Backup, logger)
	go backups.Start(ctx)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	event := logger.Info().Int("http_port", cfg.API.HTTP.Port)
	if grpcServer != nil {
		event = event.Str("grpc_addr", grpcServer.Addr())
	}
	event.Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
