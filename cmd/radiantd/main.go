// Command radiantd runs the lending engine as a standalone HTTP service,
// following the same flag/config/telemetry/graceful-shutdown shape
// cmd/gateway's main.go uses for the rest of this codebase's services.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"radiantcore/analytics"
	gwauth "radiantcore/gateway/auth"
	"radiantcore/gateway/middleware"
	"radiantcore/internal/custody"
	"radiantcore/internal/httpapi"
	"radiantcore/internal/oracle"
	"radiantcore/internal/radiantconfig"
	"radiantcore/internal/radiantmetrics"
	"radiantcore/lending"
	"radiantcore/lending/persist"
	"radiantcore/native/common"
	"radiantcore/observability/otel"
)

func main() {
	var cfgPath, dumpStatePath, loadStatePath string
	flag.StringVar(&cfgPath, "config", "", "path to radiantd TOML configuration")
	flag.StringVar(&dumpStatePath, "dump-state", "", "write a YAML snapshot of every market/reserve/obligation to this path and exit")
	flag.StringVar(&loadStatePath, "load-state", "", "load a YAML snapshot produced by -dump-state before starting")
	flag.Parse()

	cfg, err := radiantconfig.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := cfg.Logger()
	stdLogger := log.New(os.Stdout, "radiantd ", log.LstdFlags|log.Lmsgprefix)

	if dumpStatePath != "" {
		if err := dumpState(cfg, dumpStatePath); err != nil {
			log.Fatalf("dump state: %v", err)
		}
		return
	}

	shutdownTelemetry, err := otel.Init(context.Background(), otel.Config{
		ServiceName: cfg.Service,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		logger.Error("failed to initialise telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	store, err := persist.Open(cfg.Storage.DataDir + "/state")
	if err != nil {
		logger.Error("open state store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if loadStatePath != "" {
		if err := loadState(store, loadStatePath); err != nil {
			logger.Error("load state", "error", err)
			os.Exit(1)
		}
		logger.Info("loaded state snapshot", "path", loadStatePath)
	}

	ledger, err := custody.Open(cfg.Storage.DataDir + "/custody")
	if err != nil {
		logger.Error("open custody ledger", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()

	aggregator := oracle.NewAggregator(500, 2000)
	events := httpapi.NewEventHub()
	metricsEmitter := radiantmetrics.NewEventEmitter()

	emitter := lending.Emitter(lending.FanOut{events, metricsEmitter})
	if cfg.Analytics.Enabled {
		db, err := gorm.Open(postgres.Open(cfg.Analytics.PostgresDSN), &gorm.Config{})
		if err != nil {
			logger.Error("open analytics database", "error", err)
			os.Exit(1)
		}
		sink, err := analytics.NewSink(db, logger)
		if err != nil {
			logger.Error("migrate analytics schema", "error", err)
			os.Exit(1)
		}
		emitter = lending.FanOut{events, metricsEmitter, sink}
	}
	engine := lending.NewEngine(store, ledger, aggregator, emitter, logger)

	jwtAuth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:        cfg.Auth.Enabled,
		HMACSecret:     cfg.Auth.HMACSecret,
		Issuer:         cfg.Auth.Issuer,
		Audience:       cfg.Auth.Audience,
		ScopeClaim:     cfg.Auth.ScopeClaim,
		OptionalPaths:  cfg.Auth.OptionalPaths,
		AllowAnonymous: cfg.Auth.AllowAnonymous,
	}, stdLogger)

	var adminAuth *gwauth.Authenticator
	if cfg.AdminSigning.Enabled {
		noncePath := cfg.AdminSigning.NoncePath
		if noncePath == "" {
			noncePath = cfg.Storage.DataDir + "/admin-nonces"
		}
		persistence, err := gwauth.NewLevelDBNoncePersistence(noncePath)
		if err != nil {
			logger.Error("open admin nonce store", "error", err)
			os.Exit(1)
		}
		capacity := cfg.AdminSigning.NonceCapacity
		if capacity == 0 {
			capacity = 4096
		}
		adminAuth = gwauth.NewAuthenticator(cfg.AdminSigning.Secrets, 2*time.Minute, 10*time.Minute, capacity, time.Now, persistence)
	}

	rateLimits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for _, rl := range cfg.RateLimits {
		rateLimits[rl.ID] = middleware.RateLimit{RatePerSecond: rl.RatePerSecond, Burst: rl.Burst}
	}

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: cfg.Service,
		Enabled:     cfg.Telemetry.Metrics,
		LogRequests: true,
	}, stdLogger)

	_, handler := httpapi.NewServer(httpapi.Config{
		Engine:             engine,
		Authenticator:      jwtAuth,
		AdminAuthenticator: adminAuth,
		RateLimiter:        middleware.NewRateLimiter(rateLimits, stdLogger),
		Observability:      obs,
		Quota: common.Quota{
			MaxRequestsPerMin: cfg.Quota.MaxRequestsPerMin,
			MaxNHBPerEpoch:    cfg.Quota.MaxBorrowPerEpoch,
			EpochSeconds:      cfg.Quota.EpochSeconds,
		},
		QuotaStore: httpapi.NewMemoryQuotaStore(),
		Events:     events,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTP.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.HTTP.ListenAddress)
	if err != nil {
		logger.Error("listen", "error", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("listening", "addr", listener.Addr().String(), "env", cfg.Environment, "service", cfg.Service)
		if serveErr := httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("serve", "error", serveErr)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
}

// dumpState exports every persisted market/reserve/obligation record to a
// YAML snapshot for operator inspection or migration, without starting the
// HTTP listener.
func dumpState(cfg radiantconfig.Config, path string) error {
	store, err := persist.Open(cfg.Storage.DataDir + "/state")
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	snap, err := store.Dump()
	if err != nil {
		return fmt.Errorf("dump store: %w", err)
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// loadState restores a YAML snapshot produced by dumpState into an
// already-open store, overwriting any records with matching keys.
func loadState(store *persist.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap persist.Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return store.Restore(context.Background(), &snap)
}
