package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"exchange-core/src/config"
	"exchange-core/src/engine"
	"exchange-core/src/handlers"
	"exchange-core/src/ledger"
	"exchange-core/src/logger"
	"exchange-core/src/registry"
	"exchange-core/src/routes"
	"exchange-core/src/server"
	"exchange-core/src/store"
	"exchange-core/src/wire"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.InitLogger(cfg.Log)
	log := logger.GetLogger()

	log.Info().Msg("Initializing exchange server")

	ctx := context.Background()

	var journal store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().
				Err(err).
				Msg("Failed to connect to database")
		}
		journal = pg
		log.Info().Msg("Persistence: PostgreSQL")
	} else {
		journal = store.NewMemory()
		log.Info().Msg("Persistence: in-memory")
	}
	defer journal.Close()

	ex := engine.NewExchange(ledger.NewLedger(), registry.NewRegistry(), journal, engine.NewSystemClock())
	dispatcher := wire.NewDispatcher(ex)
	tcpServer := server.New(cfg.ListenAddr, dispatcher)

	admin := handlers.NewAdminHandler(ex)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Admin request error")

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	routes.SetupRoutes(app, admin, cfg.RateLimit)

	serverError := make(chan error, 2)

	go func() {
		if err := tcpServer.ListenAndServe(ctx); err != nil {
			serverError <- err
		}
	}()

	go func() {
		if err := app.Listen(cfg.AdminAddr); err != nil {
			// edge case: ignore shutdown errors, only report real errors
			if err.Error() != "server is shutting down" {
				serverError <- err
			}
		}
	}()

	select {
	case err := <-serverError:
		log.Fatal().
			Err(err).
			Str("listen_addr", cfg.ListenAddr).
			Str("admin_addr", cfg.AdminAddr).
			Str("hint", "A port may be already in use. Try: PORT=23456 ./exchange-core").
			Msg("Server failed to start")
	default:
		log.Info().
			Str("listen_addr", cfg.ListenAddr).
			Str("admin_addr", cfg.AdminAddr).
			Msg("Exchange server started")

		log.Info().
			Strs("admin_endpoints", []string{
				"GET /api/v1/orderbook/:symbol",
				"GET /api/v1/orders/:id",
				"GET /api/v1/accounts/:id",
				"GET /health",
				"GET /metrics",
			}).
			Msg("Admin endpoints registered")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	log.Info().Msg("Received shutdown signal, shutting down...")

	tcpServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		// edge case: timeout during shutdown is acceptable
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Dur("timeout", cfg.ShutdownTimeout).
				Msg("Timeout exceeded, shutting down...")
		} else {
			log.Error().
				Err(err).
				Msg("Error during shutdown")
		}
	} else {
		log.Info().Msg("Shutdown complete")
	}

	logger.CloseLogger()
}
