package billing

import (
	"msp-console/core/lock"
	"msp-console/core/psa"
	"msp-console/core/storage"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service  *Service
	exporter *Exporter
	handler  *Handler
}

// NewFeature creates the billing feature over its wired collaborators.
func NewFeature(db *gorm.DB, psaClient psa.Client, locker *lock.Locker, store storage.Client, bucket string, logger *zap.Logger) *Feature {
	registry := NewSourceRegistry(db)
	svc := NewService(db, psaClient, registry, locker, logger)
	exporter := NewExporter(db, store, bucket, logger)
	h := NewHandler(svc, exporter)
	return &Feature{service: svc, exporter: exporter, handler: h}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "billing"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}

// Service exposes the feature's service for CLI use.
func (f *Feature) Service() *Service {
	return f.service
}
