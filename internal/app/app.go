package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"lead-console/config"
	"lead-console/internal/models"
	"lead-console/internal/repositories"
	"lead-console/internal/services"
)

// App holds the services of one console process.
type App struct {
	Config      *config.Config
	Location    *time.Location
	Datasets    *services.DatasetStore
	Callers     *services.CallerService
	Engine      *services.DispositionEngine
	Scheduler   *services.Scheduler
	Exports     *services.ExportService
	Console     *services.Console
	Connections *services.ConnectionManager

	db     *sql.DB
	redis  *redis.Client
	logger *zap.Logger
}

type stores struct {
	datasets     models.DatasetRepository
	callers      models.CallerRepository
	appointments models.AppointmentRepository
	sessions     models.SessionRepository
}

// New opens the configured stores and wires the services. Call Close when
// done.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Location: loc, logger: logger}

	st, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	sessions := services.NewSessionStore(st.sessions)
	a.Datasets = services.NewDatasetStore(st.datasets, logger)
	a.Callers = services.NewCallerService(st.callers, logger)
	a.Engine = services.NewDispositionEngine(sessions, a.Datasets, a.Callers, loc, logger)
	a.Connections = services.NewConnectionManager(&cfg.WhatsApp, logger)

	router := &services.NotifierRouter{
		Webhook: services.NewWebhookNotifier(cfg.Scheduler.WebhookTimeout, logger),
		Feed:    services.FeedNotifier{},
	}
	if cfg.WhatsApp.Enabled {
		router.Chat = a.Connections
	}
	a.Scheduler = services.NewScheduler(st.appointments, a.Datasets, router, services.SchedulerConfig{
		LeadTime: cfg.Scheduler.LeadTime,
		Interval: cfg.Scheduler.Interval,
		Location: loc,
	}, logger)

	var uploader services.ExportUploader
	if cfg.S3Config.Enabled {
		s3, err := services.NewS3Service(cfg.S3Config)
		if err != nil {
			a.Close()
			return nil, err
		}
		uploader = s3
	}
	a.Exports = services.NewExportService(a.Datasets, uploader)
	a.Console = services.NewConsole(sessions, a.Datasets, a.Engine, a.Scheduler, a.Callers, a.Exports, loc, logger)

	if err := a.Datasets.EnsureDefault(); err != nil {
		a.Close()
		return nil, fmt.Errorf("error creating default dataset: %w", err)
	}
	return a, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	var st stores
	if a.Config.Database.Driver == config.DriverMemory {
		st.datasets = repositories.NewMemoryDatasetRepository()
		st.callers = repositories.NewMemoryCallerRepository()
		st.appointments = repositories.NewMemoryAppointmentRepository()
	} else {
		db, err := config.ConnectDatabase(&a.Config.Database)
		if err != nil {
			return st, err
		}
		a.db = db
		if err := repositories.Migrate(db); err != nil {
			return st, err
		}
		st.datasets = repositories.NewSQLDatasetRepository(db)
		st.callers = repositories.NewSQLCallerRepository(db)
		st.appointments = repositories.NewSQLAppointmentRepository(db)
	}
	a.logger.Info("record store ready", zap.String("driver", a.Config.Database.Driver))

	if !a.Config.Redis.Enabled {
		st.sessions = repositories.NewMemorySessionRepository()
		return st, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	a.redis = client
	if err := client.Ping(ctx).Err(); err != nil {
		return st, fmt.Errorf("error connecting to redis: %w", err)
	}
	st.sessions = repositories.NewRedisSessionRepository(client, a.Config.Redis.KeyPrefix)
	a.logger.Info("session store ready", zap.String("redis_addr", a.Config.Redis.Addr))
	return st, nil
}

// Close releases the chat connection and the stores.
func (a *App) Close() error {
	var firstErr error
	if a.Connections != nil {
		if err := a.Connections.CloseAllConnections(); err != nil {
			firstErr = err
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
