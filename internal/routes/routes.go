package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kobo-pay/kobo_pay/internal/account"
	"github.com/kobo-pay/kobo_pay/internal/config"
	"github.com/kobo-pay/kobo_pay/internal/engine"
	"github.com/kobo-pay/kobo_pay/internal/events"
	"github.com/kobo-pay/kobo_pay/internal/gateway"
	"github.com/kobo-pay/kobo_pay/internal/ledger"
	"github.com/kobo-pay/kobo_pay/internal/metrics"
	"github.com/kobo-pay/kobo_pay/internal/middleware"
	"github.com/kobo-pay/kobo_pay/internal/settings"
	"github.com/kobo-pay/kobo_pay/internal/settlement"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Outbox events.Outbox
	Logger *slog.Logger

	// Workflow is constructed by Setup and exposed so main can run its
	// settlement loop.
	Workflow *settlement.Workflow
}

// Setup configures middlewares and all application routes, and wires the
// ledger engine with its settlement workflow.
func Setup(app *fiber.App, d *Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// Storage backends
	var store ledger.Store
	var accountRepo account.Repository
	var requestRepo settlement.Repository
	var settingsStore settings.Store
	if d.DB != nil {
		store = ledger.NewPostgres(d.DB)
		accountRepo = account.NewPostgresRepository(d.DB)
		requestRepo = settlement.NewPostgresRepository(d.DB)
		settingsStore = settings.NewPostgresStore(d.DB)
	} else {
		store = ledger.NewInMemory()
		accountRepo = account.NewMemoryRepository()
		requestRepo = settlement.NewMemoryRepository()
		settingsStore = settings.NewMemoryStore()
	}
	if d.Cache != nil {
		settingsStore = settings.NewCachedStore(settingsStore, d.Cache, d.Cfg.SettingsCacheTTL)
	}

	// Gateways: a channel with no credentials is simply absent.
	gateways := map[engine.Channel]gateway.Client{}
	if d.Cfg.CardGatewayKey != "" {
		gateways[engine.ChannelCard] = gateway.NewStaticGateway("")
	}
	if d.Cfg.TransferGatewayKey != "" {
		gateways[engine.ChannelTransfer] = gateway.NewStaticGateway("")
	}
	var payout gateway.PayoutClient = &gateway.StaticPayout{}

	d.Workflow = settlement.NewWorkflow(store, requestRepo, payout, d.Outbox, d.Logger,
		d.Cfg.PayoutTimeout, d.Cfg.SettlePoll)

	eng := engine.New(store, accountRepo, settingsStore, gateways, d.Workflow,
		requestRepo, d.Outbox, d.Logger)

	accountSvc := account.NewService(accountRepo, store)
	accountHandler := account.NewHandler(accountSvc)
	engineHandler := engine.NewHandler(eng)
	settlementHandler := settlement.NewHandler(d.Workflow)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAccountRoutes(api, accountHandler)
	RegisterLedgerRoutes(api, engineHandler, settlementHandler)
	RegisterAdminRoutes(api, accountHandler, settlementHandler)

	return nil
}
