package references

import (
	"store-migrator/core/logger"
	"store-migrator/core/reconcile"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler serves reconciliation reports.
type Handler struct {
	engine *reconcile.Engine
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(engine *reconcile.Engine, l *zap.Logger) *Handler {
	return &Handler{engine: engine, logger: l}
}

// RegisterRoutes registers the reconcile routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/reconcile", h.HandleReport)
}

// HandleReport returns the cached report. refresh=true forces a new
// analysis. The endpoint never mutates anything.
func (h *Handler) HandleReport(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	if c.QueryBool("refresh") {
		h.engine.Invalidate()
	}
	report, err := h.engine.Cached(c.UserContext())
	if err != nil {
		l.Error("Reconciliation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if c.QueryBool("summary") {
		return c.JSON(fiber.Map{
			"bucket":        report.Bucket,
			"generated_at":  report.GeneratedAt,
			"objects":       report.Objects,
			"references":    report.References,
			"unused":        len(report.Unused),
			"unused_bytes":  report.UnusedBytes,
			"dangling":      len(report.Dangling),
			"unrecognized":  len(report.Unrecognized),
			"by_category":   report.ByCategory,
			"by_collection": report.ByCollection,
		})
	}
	return c.JSON(report)
}
