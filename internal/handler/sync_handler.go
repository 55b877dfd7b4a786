package handler

import (
	"context"
	"fmt"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/service"
	"github.com/gofiber/fiber/v2"
)

// StatusService reports queue depths and breaker states.
type StatusService interface {
	Report(ctx context.Context) (service.StatusReport, error)
}

// SyncRunner runs one drain cycle on demand.
type SyncRunner interface {
	RunCycle(ctx context.Context) (service.CycleStats, error)
}

type SyncHandler struct {
	status StatusService
	runner SyncRunner
}

func NewSyncHandler(status StatusService, runner SyncRunner) (*SyncHandler, error) {
	if status == nil {
		return nil, fmt.Errorf("status service is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("sync runner is required")
	}
	return &SyncHandler{status: status, runner: runner}, nil
}

func RegisterSyncRoutes(router fiber.Router, status StatusService, runner SyncRunner) error {
	h, err := NewSyncHandler(status, runner)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/sync/status", h.GetSyncStatus)
	v1.Post("/sync/force", h.ForceSync)

	return nil
}

type forceSyncResponse struct {
	Reclaimed       int64 `json:"reclaimed"`
	Attempted       int   `json:"attempted"`
	Synced          int   `json:"synced"`
	Requeued        int   `json:"requeued"`
	FailedPermanent int   `json:"failedPermanent"`
	Skipped         int   `json:"skipped"`
}

func (h *SyncHandler) GetSyncStatus(c *fiber.Ctx) error {
	report, err := h.status.Report(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(report)
}

func (h *SyncHandler) ForceSync(c *fiber.Ctx) error {
	stats, err := h.runner.RunCycle(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(forceSyncResponse{
		Reclaimed:       stats.Reclaimed,
		Attempted:       stats.Attempted,
		Synced:          stats.Synced,
		Requeued:        stats.Requeued,
		FailedPermanent: stats.FailedPermanent,
		Skipped:         stats.Skipped,
	})
}
