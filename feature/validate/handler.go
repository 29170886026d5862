package validate

import (
	"store-migrator/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler serves validation reports.
type Handler struct {
	validator *Validator
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(validator *Validator, l *zap.Logger) *Handler {
	return &Handler{validator: validator, logger: l}
}

// RegisterRoutes registers the validate route.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/validate", h.HandleValidate)
}

// HandleValidate runs a validation. Failed checks still answer 200; the
// report's passed flag carries the verdict.
func (h *Handler) HandleValidate(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	l.Info("Triggering validation")

	report, err := h.validator.Validate(c.UserContext())
	if err != nil {
		l.Error("Validation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}

// Feature implements the loader.Feature interface.
type Feature struct {
	enabled bool
	handler *Handler
}

// NewFeature creates the validate feature.
func NewFeature(cfg Config, validator *Validator, logger *zap.Logger) *Feature {
	return &Feature{enabled: cfg.Enabled, handler: NewHandler(validator, logger)}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "validate"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return f.enabled
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
