package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/weather-ingest/internal/api/http"
	"github.com/i474232898/weather-ingest/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the ingestion scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("no-scheduler", false, "serve the API without periodic ingestion")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	noScheduler, _ := cmd.Flags().GetBool("no-scheduler")
	if !noScheduler {
		sched := scheduler.New(a.store, a.ingestor, scheduler.Options{
			Interval:    a.cfg.SchedulerInterval,
			Concurrency: a.cfg.SchedulerConcurrency,
			Logger:      a.logger,
			Metrics:     a.metrics,
		})
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	server := fiber.New(fiber.Config{
		AppName:               "weather-ingest",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          a.cfg.HTTPTimeout + 10*time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
	server.Use(recover.New())
	server.Use(requestLogger(a.logger))

	httpapi.RegisterRoutes(server, httpapi.Deps{
		Service:  a.service,
		Ingestor: a.ingestor,
		Gatherer: a.registry,
		Logger:   a.logger,
	})

	go func() {
		a.logger.Info("http server listening", zap.String("port", a.cfg.Port))
		if err := server.Listen(":" + a.cfg.Port); err != nil {
			a.logger.Error("fiber server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		a.logger.Warn("error during shutdown", zap.Error(err))
	}
	a.logger.Info("server stopped")
	return nil
}

// requestLogger logs one line per request with zap.
func requestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}
		log.Debug("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
		)
		return err
	}
}
