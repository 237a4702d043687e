package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suchimauz/speaker-session-booking/internal/adapters/in/http"
	"github.com/suchimauz/speaker-session-booking/internal/adapters/in/rabbitmq"
	"github.com/suchimauz/speaker-session-booking/internal/adapters/out/cache"
	"github.com/suchimauz/speaker-session-booking/internal/adapters/out/logger"
	"github.com/suchimauz/speaker-session-booking/internal/adapters/out/remote"
	"github.com/suchimauz/speaker-session-booking/internal/adapters/out/sqlite"
	"github.com/suchimauz/speaker-session-booking/internal/config"
	"github.com/suchimauz/speaker-session-booking/internal/core/ports/out"
	"github.com/suchimauz/speaker-session-booking/internal/core/services"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	mainLogger, syncLogger, err := newLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer syncLogger()
	logger := mainLogger.WithModule("Main")

	logger.Info("app.starting", out.LogFields{
		"version":         cfg.App.Version,
		"env":             cfg.App.Env,
		"timezone":        cfg.App.Timezone,
		"store":           cfg.Store.Driver,
		"rabbitmqEnabled": cfg.RabbitMQ.Enabled,
		"cacheEnabled":    cfg.Cache.Enabled,
		"cacheBackend":    cfg.Cache.Backend,
	})

	// Настройка Gin в зависимости от окружения
	if cfg.IsNotLocal() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализация хранилища
	var store out.SpeakerStorePort
	switch cfg.Store.Driver {
	case config.StoreRemote:
		store = remote.NewRemoteStore(cfg, mainLogger)
	default:
		db, sqliteStore, err := newSqliteStore(ctx, cfg, mainLogger)
		if err != nil {
			logger.Error("app.store.init_failed", out.LogFields{
				"error": err.Error(),
			})
			os.Exit(1)
		}
		defer db.Close()
		store = sqliteStore
	}

	// Кэш подключается только если включен
	var cacheAdapter out.CachePort
	if cfg.Cache.Enabled {
		switch cfg.Cache.Backend {
		case config.CacheRedis:
			redisCache := cache.NewRedisCacheAdapter(cache.NewRedisClient(cfg), cfg.Cache.TTL, mainLogger)
			if err := redisCache.Ping(ctx); err != nil {
				logger.Warn("app.cache.redis_unreachable", out.LogFields{
					"addr":  cfg.Cache.RedisAddr,
					"error": err.Error(),
				})
			} else {
				cacheAdapter = redisCache
			}
		default:
			cacheAdapter = cache.NewLRUCacheAdapter(cfg, mainLogger)
		}
	}

	// Инициализация сервиса
	bookingService := services.NewBookingService(
		store,
		cacheAdapter,
		cfg,
		mainLogger,
		services.WithLocation(cfg.Location()),
	)
	defer bookingService.Shutdown()

	// Настройка HTTP сервера
	router := gin.Default()
	controller := http.NewBookingController(bookingService, cfg, mainLogger)
	controller.RegisterRoutes(router)

	server := &nethttp.Server{
		Addr:    cfg.HTTP.Host + ":" + cfg.HTTP.Port,
		Handler: router,
	}

	// Настройка RabbitMQ слушателя только если он включен
	if cfg.RabbitMQ.Enabled {
		listener, err := rabbitmq.NewSelectionListener(bookingService, cfg, mainLogger)
		if err != nil {
			logger.Error("app.rabbitmq.init_failed", out.LogFields{
				"error": err.Error(),
			})
			os.Exit(1)
		}

		if err := listener.Start(ctx); err != nil {
			logger.Error("app.rabbitmq.start_failed", out.LogFields{
				"error": err.Error(),
			})
			os.Exit(1)
		}

		defer func() {
			if err := listener.Stop(); err != nil {
				logger.Error("app.rabbitmq.stop_failed", out.LogFields{
					"error": err.Error(),
				})
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("app.http.starting", out.LogFields{
			"host": cfg.HTTP.Host,
			"port": cfg.HTTP.Port,
		})

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logger.Error("app.http.failed", out.LogFields{
				"error": err.Error(),
			})
			sigChan <- syscall.SIGTERM
		}
	}()

	sig := <-sigChan
	logger.Info("app.shutdown.initiated", out.LogFields{
		"signal":   sig.String(),
		"sessions": bookingService.Sessions(),
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("app.http.shutdown_failed", out.LogFields{
			"error": err.Error(),
		})
	}
}

func newLogger(cfg *config.Config) (out.LoggerPort, func(), error) {
	level := logger.ParseLevel(cfg.Log.Level)

	if cfg.Log.Format == config.LogZap {
		zapLogger, err := logger.NewZapLogger(cfg.IsNotLocal(), level)
		if err != nil {
			return nil, nil, err
		}
		return zapLogger, func() { _ = zapLogger.Sync() }, nil
	}

	consoleLogger, err := logger.NewConsoleLogger(cfg.App.Timezone, level)
	if err != nil {
		return nil, nil, err
	}
	return consoleLogger, func() {}, nil
}

func newSqliteStore(ctx context.Context, cfg *config.Config, log out.LoggerPort) (*sql.DB, *sqlite.SqliteStore, error) {
	db, err := sqlite.Open(ctx, cfg.Store.SqliteDSN)
	if err != nil {
		return nil, nil, err
	}

	store := sqlite.NewSqliteStore(db, log)
	if cfg.Store.SeedDemo {
		if err := store.Seed(ctx, sqlite.DemoSpeakers); err != nil {
			db.Close()
			return nil, nil, err
		}
	}

	return db, store, nil
}
