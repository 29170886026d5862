package cmd

import (
	"store-migrator/core/config"
	"store-migrator/core/loader"
	"store-migrator/core/logger"
	"store-migrator/core/middleware/auth"
	"store-migrator/core/middleware/rayid"
	"store-migrator/core/server"
	"store-migrator/feature/references"
	"store-migrator/feature/validate"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve read-only reports over HTTP",
	Long: `Starts the HTTP server with the health and metrics endpoints plus every
enabled feature: the cached reconcile report and the validation report.`,
	RunE: runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	probe, err := config.LoadConfig(".")
	if err != nil {
		return err
	}
	needs := config.Needs{
		Source:        probe.Validation.Enabled,
		Target:        probe.Validation.Enabled || probe.Reconcile.Enabled,
		TargetStorage: probe.Reconcile.Enabled,
	}

	ctx, e, err := setup(cmd.Context(), "server", needs)
	if err != nil {
		return err
	}
	defer e.close()

	var features []loader.Feature
	if probe.Reconcile.Enabled {
		engine, err := e.newReconciler()
		if err != nil {
			return err
		}
		features = append(features, references.NewFeature(e.cfg.Reconcile, engine, e.logger.Named("reconcile")))
	}
	if probe.Validation.Enabled {
		v := e.newValidator(e.newTransformer())
		features = append(features, validate.NewFeature(e.cfg.Validation, v, e.logger.Named("validate")))
	}

	app, loaded, err := newServer(e.cfg.Server, e.metrics.Registry(), e.logger, features...)
	if err != nil {
		return err
	}
	e.logger.Info("Features loaded", zap.Strings("features", loaded))

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("Starting server", zap.String("port", e.cfg.Server.Port))
		errCh <- app.Listen(":" + e.cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	e.logger.Info("Shutting down server...")
	return app.ShutdownWithTimeout(e.cfg.Server.ShutdownTimeout())
}

// newServer builds the fiber app and mounts the enabled features. The health
// and metrics endpoints skip the API key check.
func newServer(cfg server.Config, registry *prometheus.Registry, logg *zap.Logger, features ...loader.Feature) (*fiber.App, []string, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// RayID must be first to trace everything
	app.Use(rayid.New())

	app.Use(func(c *fiber.Ctx) error {
		l := logger.WithRayID(logg, c)
		l.Info("Request started",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
		)
		err := c.Next()
		if err != nil {
			l.Error("Request error", zap.Error(err))
		}
		return err
	})

	app.Use(auth.New(auth.Config{ApiKey: cfg.ApiKey, Skip: server.PublicPaths}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	mgr := loader.NewManager()
	for _, f := range features {
		mgr.Register(f)
	}
	loaded, err := mgr.LoadAll(app)
	if err != nil {
		return nil, nil, err
	}
	return app, loaded, nil
}
