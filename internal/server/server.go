package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kobo-pay/kobo_pay/internal/config"
	"github.com/kobo-pay/kobo_pay/internal/events"
	"github.com/kobo-pay/kobo_pay/internal/routes"
	"github.com/kobo-pay/kobo_pay/internal/settlement"
)

// Server wraps the Fiber application, shared dependencies and the background
// workers that settle withdrawals and deliver events.
type Server struct {
	app        *fiber.App
	cfg        config.Config
	db         *pgxpool.Pool
	cache      *redis.Client
	dispatcher *events.Dispatcher
	workflow   *settlement.Workflow
}

// New instantiates the HTTP server and delegates route wiring to
// routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	dispatcher := events.NewDispatcher(events.NewLoggerNotifier(logger), logger, cfg.EventBuffer)

	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Outbox: dispatcher, Logger: logger}
	if err := routes.Setup(app, &deps); err != nil {
		return nil, err
	}

	return &Server{
		app:        app,
		cfg:        cfg,
		db:         db,
		cache:      cache,
		dispatcher: dispatcher,
		workflow:   deps.Workflow,
	}, nil
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// RunWorkers starts the settlement workflow and event dispatcher; both stop
// when ctx is cancelled.
func (s *Server) RunWorkers(ctx context.Context) {
	go s.workflow.Run(ctx)
	go s.dispatcher.Run(ctx)
}

// Shutdown gracefully stops the HTTP server and drains the event dispatcher.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.dispatcher.Close()
	return err
}
