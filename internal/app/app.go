package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stayspace/hooks/internal/bus"
	"github.com/stayspace/hooks/internal/config"
	"github.com/stayspace/hooks/internal/database"
	"github.com/stayspace/hooks/internal/middleware"
	"github.com/stayspace/hooks/internal/modules/webhook"
	"github.com/stayspace/hooks/internal/pkg/cron"
	"github.com/stayspace/hooks/internal/pkg/jwt"
	"github.com/stayspace/hooks/internal/pkg/redis"
	"github.com/stayspace/hooks/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const retrySweepJob = "webhook-retry-sweep"

// App wires configuration, storage, the event bus consumer, the retry
// scheduler and the admin HTTP API into one process.
type App struct {
	cfg    *config.AppConfig
	logger *zap.Logger

	db       *gorm.DB
	redis    *redis.Client
	consumer *webhook.Consumer
	sched    *cron.Scheduler
	router   *gin.Engine

	cancel context.CancelFunc
}

// New builds the application. Database and Redis must be reachable; a bus
// that cannot be reached at startup is logged and the rest of the service
// still comes up, so the admin API stays usable during broker outages.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	jwt.SetSecret(cfg.JWTSecret)

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	registry := webhook.NewRegistry(db)
	ledger := webhook.NewLedger(db)
	sender := webhook.NewSender(ledger, registry, cfg.Webhook, logger.Named("sender"))

	eventBus := bus.NewAMQPBus(cfg.AMQP, webhook.RoutingKeys(), logger.Named("bus"))
	consumer := webhook.NewConsumer(eventBus, registry, ledger, sender, logger.Named("consumer"))

	worker := webhook.NewRetryWorker(ledger, registry, sender, logger.Named("retry"))
	sched := cron.New()
	sched.Register(cron.Job{
		Name:        retrySweepJob,
		Description: "redeliver pending_retry webhook deliveries that are due",
		Interval:    cfg.Webhook.RetryPollInterval(),
		Fn:          worker.Tick,
	})

	app := &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		redis:    rdb,
		consumer: consumer,
		sched:    sched,
	}
	app.router = app.buildRouter(registry, ledger, sender)
	return app, nil
}

// Start launches the bus consumer and the retry scheduler.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.consumer.Start(ctx); err != nil {
		// Deliveries resume once the broker is back and the process restarts
		// or the consumer is restarted; the admin API keeps serving meanwhile.
		a.logger.Error("event bus unavailable, consumer not started", zap.Error(err))
	}
	a.sched.Start(ctx)
}

// Shutdown stops the scheduler and the bus consumer.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.consumer.Stop(); err != nil {
		a.logger.Warn("bus consumer stop", zap.Error(err))
	}
}

// Router returns the HTTP handler.
func (a *App) Router() *gin.Engine { return a.router }

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

func (a *App) buildRouter(registry *webhook.Registry, ledger *webhook.Ledger, sender *webhook.Sender) *gin.Engine {
	if !a.cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(a.logger.Named("http")))
	r.Use(cors.New(a.corsConfig()))

	r.NoRoute(func(c *gin.Context) { response.NotFound(c) })
	r.NoMethod(func(c *gin.Context) { response.MethodNotAllowed(c) })
	r.HandleMethodNotAllowed = true

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	handler := webhook.NewHandler(registry, ledger, sender)
	handler.RegisterRoutes(api, middleware.AdminAuth(), middleware.Idempotence(a.redis.Raw()))

	return r
}

func (a *App) corsConfig() cors.Config {
	conf := cors.DefaultConfig()
	conf.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	conf.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "x-idempotence"}
	conf.AllowCredentials = true
	if len(a.cfg.AllowedOrigins) > 0 {
		conf.AllowOrigins = a.cfg.AllowedOrigins
	} else {
		conf.AllowAllOrigins = true
		conf.AllowCredentials = false
	}
	return conf
}
