package billing

import (
	"context"
	"errors"

	"msp-console/core/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for billing reconciliation.
type Handler struct {
	service  *Service
	exporter *Exporter
	validate *validator.Validate
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, exporter *Exporter) *Handler {
	return &Handler{
		service:  service,
		exporter: exporter,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the billing routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/billing")
	group.Post("/reconcile", h.HandleReconcile)
	group.Post("/reconcile-all", h.HandleReconcileAll)
	group.Get("/snapshots/:id/items", h.HandleSnapshotItems)
	group.Post("/snapshots/:id/export", h.HandleExportSnapshot)
	group.Post("/items/:id/approve", h.HandleApproveItem)
	group.Post("/items/:id/dismiss", h.HandleDismissItem)
	group.Post("/writeback", h.HandleWriteBack)
	group.Get("/activity/:companyID", h.HandleCompanyActivity)
}

type reconcileRequest struct {
	CompanyID string `json:"company_id" validate:"required"`
	ActorID   string `json:"actor_id"`
}

// HandleReconcile runs one reconciliation pass for a company.
func (h *Handler) HandleReconcile(c *fiber.Ctx) error {
	l := logger.WithRequestID(h.service.logger, c)

	var req reconcileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err)
	}

	result, err := h.service.Reconcile(c.Context(), req.CompanyID, req.ActorID)
	if err != nil {
		l.Error("Reconciliation failed", zap.String("company_id", req.CompanyID), zap.Error(err))
		return fail(c, err)
	}

	return c.JSON(result)
}

type reconcileAllRequest struct {
	ActorID string `json:"actor_id"`
}

// HandleReconcileAll reconciles every company with active integrations.
func (h *Handler) HandleReconcileAll(c *fiber.Ctx) error {
	l := logger.WithRequestID(h.service.logger, c)

	var req reconcileAllRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
	}

	results, err := h.service.ReconcileAll(c.Context(), req.ActorID)
	if err != nil {
		l.Error("Batch reconciliation failed", zap.Error(err))
		return fail(c, err)
	}

	return c.JSON(fiber.Map{"companies": results})
}

// HandleSnapshotItems returns the items of one snapshot, discrepancies first.
func (h *Handler) HandleSnapshotItems(c *fiber.Ctx) error {
	l := logger.WithRequestID(h.service.logger, c)
	snapshotID := c.Params("id")

	snapshot, err := h.service.Snapshot(c.Context(), snapshotID)
	if err != nil {
		l.Error("Snapshot lookup failed", zap.String("snapshot_id", snapshotID), zap.Error(err))
		return fail(c, err)
	}

	items, err := h.service.ItemsForSnapshot(c.Context(), snapshotID)
	if err != nil {
		l.Error("Snapshot items lookup failed", zap.String("snapshot_id", snapshotID), zap.Error(err))
		return fail(c, err)
	}

	return c.JSON(fiber.Map{"snapshot": snapshot, "items": items})
}

// HandleExportSnapshot renders a snapshot to XLSX and uploads it.
func (h *Handler) HandleExportSnapshot(c *fiber.Ctx) error {
	l := logger.WithRequestID(h.service.logger, c)
	snapshotID := c.Params("id")

	objectName, err := h.exporter.Export(c.Context(), snapshotID)
	if err != nil {
		l.Error("Snapshot export failed", zap.String("snapshot_id", snapshotID), zap.Error(err))
		return fail(c, err)
	}

	return c.JSON(fiber.Map{"object_name": objectName})
}

type reviewRequest struct {
	ActorID string `json:"actor_id"`
}

// HandleApproveItem marks a pending item approved.
func (h *Handler) HandleApproveItem(c *fiber.Ctx) error {
	return h.handleReview(c, h.service.ApproveItem)
}

// HandleDismissItem marks a pending item dismissed.
func (h *Handler) HandleDismissItem(c *fiber.Ctx) error {
	return h.handleReview(c, h.service.DismissItem)
}

func (h *Handler) handleReview(c *fiber.Ctx, review func(ctx context.Context, itemID, actorID string) error) error {
	l := logger.WithRequestID(h.service.logger, c)
	itemID := c.Params("id")

	var req reviewRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
	}

	if err := review(c.Context(), itemID, req.ActorID); err != nil {
		l.Error("Item review failed", zap.String("item_id", itemID), zap.Error(err))
		return fail(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

type writeBackRequest struct {
	ItemIDs []string `json:"item_ids" validate:"required,min=1"`
	ActorID string   `json:"actor_id"`
}

// HandleWriteBack pushes a batch of items' live quantities to the PSA.
func (h *Handler) HandleWriteBack(c *fiber.Ctx) error {
	l := logger.WithRequestID(h.service.logger, c)

	var req writeBackRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err)
	}

	outcomes := h.service.WriteBackMany(c.Context(), req.ItemIDs, req.ActorID)
	for _, outcome := range outcomes {
		if outcome.Err != "" {
			l.Warn("Write-back item failed",
				zap.String("item_id", outcome.ItemID), zap.String("error", outcome.Err))
		}
	}

	return c.JSON(fiber.Map{"outcomes": outcomes})
}

// HandleCompanyActivity returns a company's billing activity log.
func (h *Handler) HandleCompanyActivity(c *fiber.Ctx) error {
	l := logger.WithRequestID(h.service.logger, c)
	companyID := c.Params("companyID")
	limit := c.QueryInt("limit")

	entries, err := h.service.ActivityForCompany(c.Context(), companyID, limit)
	if err != nil {
		l.Error("Activity lookup failed", zap.String("company_id", companyID), zap.Error(err))
		return fail(c, err)
	}

	return c.JSON(fiber.Map{"entries": entries})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

// fail maps domain errors onto HTTP statuses.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ErrCompanyNotFound),
		errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrSnapshotNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, ErrNoIntegrations),
		errors.Is(err, ErrNoIntegration),
		errors.Is(err, ErrMissingPsaLink),
		errors.Is(err, ErrInvalidTransition):
		status = fiber.StatusUnprocessableEntity
	case errors.Is(err, ErrRunInProgress):
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
