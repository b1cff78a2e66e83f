package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/gym-roster/internal/config"
	"github.com/iliyamo/gym-roster/internal/database"
	"github.com/iliyamo/gym-roster/internal/handler"
	"github.com/iliyamo/gym-roster/internal/keylock"
	"github.com/iliyamo/gym-roster/internal/middleware"
	"github.com/iliyamo/gym-roster/internal/queue"
	"github.com/iliyamo/gym-roster/internal/repository"
	"github.com/iliyamo/gym-roster/internal/router"
	"github.com/iliyamo/gym-roster/internal/service"
)

const shutdownTimeout = 15 * time.Second

// stores is the storage selected by STORAGE_DRIVER.
type stores struct {
	activities repository.Store
	users      repository.UserStore
	tokens     repository.TokenStore
	db         *sql.DB // nil for the memory driver
}

func openStores(cfg config.Config, log *slog.Logger) (*stores, error) {
	if cfg.StorageDriver == config.DriverMemory {
		log.Warn("using in-memory storage, data is lost on exit")
		return &stores{
			activities: repository.NewMemoryStore(),
			users:      repository.NewMemoryUserRepo(),
			tokens:     repository.NewMemoryTokenRepo(),
		}, nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &stores{
		activities: repository.NewActivityRepo(db),
		users:      repository.NewUserRepo(db),
		tokens:     repository.NewTokenRepo(db),
		db:         db,
	}, nil
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	st, err := openStores(cfg, log)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}
	if err := service.EnsureAdmin(ctx, st.users, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost, log); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()

	var events service.Publisher = service.NoopPublisher{}
	if cfg.RabbitMQURL != "" {
		pub := service.NewAMQPPublisher(cfg.RabbitMQURL, queue.DefaultQueue)
		defer pub.Close()
		events = pub
	}

	locks := keylock.New()
	policy := service.NewPolicy()
	notify := service.NewNotifier(events, cacheInvalidator(rdb, cacheCfg), log)
	catalog := service.NewCatalog(st.activities, locks, notify)
	coord := service.NewCoordinator(st.activities, st.users, locks, policy, notify)
	gen := service.NewGenerator(catalog, policy, cfg.BulkConcurrency, log)

	e := newEcho(log, rdb)
	var pinger handler.Pinger
	if st.db != nil {
		pinger = st.db
	}
	router.RegisterRoutes(e, pinger)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, st.users, st.tokens), cfg.JWTSecret)
	activities := handler.NewActivityHandler(catalog, gen, policy)
	router.RegisterPublic(e, activities, middleware.NewRedisCache(cacheCfg, rdb, log))
	router.RegisterAdmin(e, activities, cfg.JWTSecret)
	router.RegisterMember(e, handler.NewEnrollmentHandler(coord), cfg.JWTSecret)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("listening", "addr", addr, "env", cfg.Env, "storage", cfg.StorageDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return e.Shutdown(sctx)
	})
	if cfg.RabbitMQURL != "" {
		g.Go(func() error {
			err := queue.StartEventConsumer(gctx, queue.ConsumerConfig{URL: cfg.RabbitMQURL, LogDir: cfg.EventLogDir})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func cacheInvalidator(rdb *redis.Client, cfg config.CacheConfig) service.Invalidator {
	if !cfg.Enabled {
		return service.NoopInvalidator{}
	}
	return service.NewRedisInvalidator(rdb, cfg.Prefix)
}

// newEcho builds the server with request logging through slog, panic
// recovery and the rate limiter.
func newEcho(log *slog.Logger, rdb *redis.Client) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				log.Warn("request", append(attrs, "err", v.Error)...)
				return nil
			}
			log.Info("request", attrs...)
			return nil
		},
	}))
	e.Use(echomw.RequestID())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	return e
}
