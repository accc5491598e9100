// Command drawd runs the recurring draw service: ticket intake over HTTP,
// scheduled draw close, randomness consumption and settlement.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"github.com/openlotto/drawd/internal/bank"
	"github.com/openlotto/drawd/internal/cache"
	"github.com/openlotto/drawd/internal/config"
	"github.com/openlotto/drawd/internal/httpapi"
	"github.com/openlotto/drawd/internal/lottery"
	"github.com/openlotto/drawd/internal/metrics"
	"github.com/openlotto/drawd/internal/middleware"
	"github.com/openlotto/drawd/internal/scheduler"
	"github.com/openlotto/drawd/internal/storage/postgres"
	"github.com/openlotto/drawd/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "drawd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Name:   "drawd",
	})

	store, closeStore, err := buildStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	bankManager := bank.NewManager(log.WithField("component", "bank"))

	engine, err := lottery.New(cfg.Params(), store, bankManager, log.WithField("component", "engine"))
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	var statusCache *cache.StatusCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		statusCache = cache.New(client, cfg.Redis.StatusTTL, log.WithField("component", "cache"))
		log.WithField("addr", cfg.Redis.Addr).Info("status cache enabled")
	}

	router := mux.NewRouter()
	api := httpapi.NewServer(engine, bankManager, statusCache, log.WithField("component", "httpapi"))
	api.Routes(router)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	auth := middleware.NewAuthMiddleware([]byte(cfg.Auth.Secret), log.WithField("component", "auth"),
		[]string{"/healthz", "/metrics"})
	limiter := middleware.NewRateLimiter(cfg.Auth.RequestsPerSecond, cfg.Auth.Burst,
		log.WithField("component", "ratelimit"))
	limiter.StartCleanup(10 * time.Minute)

	handler := metrics.InstrumentHandler(auth.Handler(limiter.Handler(router)))

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var drawCloser *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		drawCloser, err = scheduler.New(engine, cfg.Lottery.OperatorID, cfg.Scheduler.Schedule,
			log.WithField("component", "scheduler"))
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		drawCloser.Start()
		defer drawCloser.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}

func buildStore(cfg config.Config, log *logger.Logger) (lottery.Store, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		if cfg.Storage.Migrate {
			if err := postgres.Migrate(db); err != nil {
				db.Close()
				return nil, nil, err
			}
			log.Info("database migrations applied")
		}
		log.Info("using postgres draw ledger")
		return postgres.New(db), func() { db.Close() }, nil
	default:
		log.Warn("using in-memory draw ledger; state is lost on restart")
		return lottery.NewMemoryStore(), func() {}, nil
	}
}
