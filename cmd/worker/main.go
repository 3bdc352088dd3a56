// Package main - точка входа фонового процесса (Worker) Alem Missions.
//
// Worker отвечает за:
// - применение миграций схемы
// - импорт каталога бейджей и шаблонов из YAML
// - периодическую сверку бейджей (reconcile_badges)
// - поддержку кэша наборов бейджей и рассылку уведомлений по событиям
// - ops-эндпоинт со статусом зависимостей и задач
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/config"
	"github.com/alem-hub/alem-missions/internal/application/eventhandler"
	"github.com/alem-hub/alem-missions/internal/application/saga"
	"github.com/alem-hub/alem-missions/internal/domain/badge"
	"github.com/alem-hub/alem-missions/internal/domain/notification"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/internal/infrastructure/catalog"
	"github.com/alem-hub/alem-missions/internal/infrastructure/messaging"
	"github.com/alem-hub/alem-missions/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/alem-missions/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/alem-missions/internal/infrastructure/scheduler"
	"github.com/alem-hub/alem-missions/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/alem-missions/internal/infrastructure/service"
	opshttp "github.com/alem-hub/alem-missions/internal/interface/http"
	"github.com/alem-hub/alem-missions/internal/interface/http/handlers"
	"github.com/alem-hub/alem-missions/pkg/circuitbreaker"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// version задаётся при сборке через -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	importPath := flag.String("import", "", "catalogue YAML to import before starting")
	reconcileOnce := flag.Bool("reconcile", false, "run badge reconciliation once and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *importPath, *reconcileOnce); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, importPath string, reconcileOnce bool) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load(configPath, version)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Options{
		Level:   cfg.Observability.LogLevel,
		Format:  cfg.Observability.LogFormat,
		Service: cfg.App.Name + "-worker",
		Version: cfg.App.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting worker", zap.String("env", string(cfg.App.Environment)))

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL И МИГРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	dbConn, err := postgres.NewConnection(ctx, postgres.Config{
		DSN:             cfg.Database.DSN(),
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	projectRepo := postgres.NewProjectRepository(dbConn)
	workflowRepo := postgres.NewWorkflowRepository(dbConn)
	projectTemplateRepo := postgres.NewProjectTemplateRepository(dbConn)
	badgeRepo := postgres.NewBadgeRepository(dbConn)
	ids := service.NewIDGenerator()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (опционально): кэш бейджей и канал уведомлений
	// ─────────────────────────────────────────────────────────────────────────
	var sinks []notification.Sink
	if cfg.Notifications.LogNotifications {
		sinks = append(sinks, service.NewLogSink(log))
	}

	var (
		redisCache *redis.Cache
		badgeCache badge.StudentBadgeCache
	)
	if !cfg.Redis.Disabled {
		redisCache, err = redis.NewCache(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, log)
		if err != nil {
			// Redis не критичен: без него уведомления идут только в лог.
			log.Warn("redis unavailable, running without cache", zap.Error(err))
		} else {
			defer func() { _ = redisCache.Close() }()
			badgeCache = redis.NewBadgeCache(redisCache, redis.TTLBadgeSet, log)
			redisSink := service.NewRedisSink(redisCache, service.RedisSinkConfig{
				ChannelPrefix: cfg.Notifications.ChannelPrefix,
				InboxPrefix:   redis.PrefixInbox,
				InboxSize:     cfg.Notifications.InboxSize,
			}, ids, log)
			// При недоступном Redis уведомления отбрасываются сразу, не дожидаясь таймаутов.
			breaker := circuitbreaker.NotificationBreaker(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			})
			sinks = append(sinks, service.NewBreakerSink(redisSink, breaker))
		}
	}
	sink := service.NewMultiSink(sinks...)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS И ОБРАБОТЧИКИ
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)

	if err := subscribe(bus, badgeCache, redisCache, log); err != nil {
		_ = bus.Close()
		return fmt.Errorf("failed to subscribe handlers: %w", err)
	}

	// Кэш обновляет OnBadgeEarnedHandler, поэтому сюда передаётся nil.
	awarder := saga.NewBadgeAwarder(projectRepo, badgeRepo, badgeRepo, nil, sink, bus, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИМПОРТ КАТАЛОГА
	// ─────────────────────────────────────────────────────────────────────────
	if importPath != "" {
		file, err := catalog.Load(importPath)
		if err != nil {
			_ = bus.Close()
			return err
		}
		importer := catalog.NewImporter(workflowRepo, projectTemplateRepo, badgeRepo, ids, log)
		if _, err := importer.Import(ctx, file); err != nil {
			_ = bus.Close()
			return fmt.Errorf("failed to import catalogue: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	reconcile := jobs.NewReconcileBadgesJob(projectRepo, awarder, log, jobs.DefaultReconcileBadgesConfig())

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:            log,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        cfg.Scheduler.JobTimeout,
	})
	if err := sched.Register(reconcile, scheduler.Every(cfg.Scheduler.ReconcileInterval).StartingNow()); err != nil {
		_ = bus.Close()
		return err
	}

	if reconcileOnce {
		_, err := sched.RunNow(ctx, reconcile.Name())
		_ = bus.Close()
		return err
	}

	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx, time.Second); err != nil {
			_ = bus.Close()
			return err
		}
	} else {
		log.Info("scheduler disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. OPS-ЭНДПОИНТ
	// ─────────────────────────────────────────────────────────────────────────
	var ops *opshttp.Server
	var opsErr <-chan error
	if cfg.Ops.Enabled {
		health := handlers.NewCompositeHealthChecker(cfg.App.Version)
		health.AddCheck("postgres", handlers.PingCheck(dbConn))
		if redisCache != nil {
			health.AddCheck("redis", handlers.PingCheck(redisCache))
		}

		opsCfg := opshttp.DefaultConfig()
		opsCfg.Addr = cfg.Ops.Addr
		ops = opshttp.NewServer(opsCfg, opshttp.Dependencies{
			Health: health,
			Jobs:   sched,
			Bus:    bus,
			Logger: log,
		})
		opsErr = ops.StartAsync()
	}

	log.Info("worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	// Ошибка ops-сервера (например, занятый порт) останавливает worker.
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received", zap.Duration("timeout", cfg.App.ShutdownTimeout))
	case err, ok := <-opsErr:
		if ok && err != nil {
			log.Error("ops server failed", zap.Error(err))
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if ops != nil {
			if err := ops.Shutdown(shutdownCtx); err != nil {
				log.Warn("ops server shutdown failed", zap.Error(err))
			}
		}
		if sched.IsRunning() {
			if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
				log.Warn("scheduler stop failed", zap.Error(err))
			}
		}
		_ = bus.Close()
	}()

	select {
	case <-done:
		log.Info("shutdown completed")
		return runErr
	case <-shutdownCtx.Done():
		return errors.New("shutdown timed out")
	}
}

// subscribe регистрирует обработчики событий, которые возникают в самом
// worker: badge.earned от сверки бейджей. Уведомление проверяющих о сдаче
// проекта подключает engine.New в процессе, принимающем действия студентов.
// Без Redis кэш и пересылка событий не подключаются.
func subscribe(
	bus *messaging.InMemoryEventBus,
	badgeCache badge.StudentBadgeCache,
	redisCache *redis.Cache,
	log *zap.Logger,
) error {
	if badgeCache != nil {
		earned := eventhandler.NewOnBadgeEarnedHandler(badgeCache, 0, log)
		if err := bus.Subscribe(shared.EventBadgeEarned, earned.Handle); err != nil {
			return err
		}
	}

	if redisCache != nil {
		if err := messaging.NewRedisForwarder(redisCache, "", "", log).Attach(bus); err != nil {
			return err
		}
	}
	return nil
}
