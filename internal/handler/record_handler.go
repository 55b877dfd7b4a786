package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/domain"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/observability"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/service"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultFailedLimit = 50
	maxFailedLimit     = 500
)

// CaptureService is the inline capture entry point.
type CaptureService interface {
	Submit(ctx context.Context, input service.CaptureInput) (*domain.Record, error)
}

// ArtifactService exposes the dead-letter review and purge operations.
type ArtifactService interface {
	ListFailedPermanent(ctx context.Context, limit int) ([]domain.Record, error)
	Purge(ctx context.Context, localID uint64) error
}

type RecordHandler struct {
	capture   CaptureService
	artifacts ArtifactService
}

func NewRecordHandler(capture CaptureService, artifacts ArtifactService) (*RecordHandler, error) {
	if capture == nil {
		return nil, fmt.Errorf("capture service is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact service is required")
	}
	return &RecordHandler{capture: capture, artifacts: artifacts}, nil
}

func RegisterRecordRoutes(router fiber.Router, capture CaptureService, artifacts ArtifactService) error {
	h, err := NewRecordHandler(capture, artifacts)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/records", h.CaptureRecord)
	v1.Get("/records/failed", h.ListFailedRecords)
	v1.Post("/records/:id/purge", h.PurgeRecord)

	return nil
}

type captureRecordRequest struct {
	EntityID          string  `json:"entityId"`
	DeviceID          string  `json:"deviceId"`
	CapturedAt        *string `json:"capturedAt"`
	Payload           string  `json:"payload"`
	ArtifactLocalPath *string `json:"artifactLocalPath"`
}

type recordResponse struct {
	LocalID           uint64     `json:"localId"`
	EntityID          string     `json:"entityId"`
	DeviceID          string     `json:"deviceId"`
	CapturedAt        time.Time  `json:"capturedAt"`
	DedupKey          string     `json:"dedupKey"`
	SyncState         string     `json:"syncState"`
	RemoteID          *string    `json:"remoteId,omitempty"`
	ArtifactRemoteURL *string    `json:"artifactRemoteUrl,omitempty"`
	RetryCount        int        `json:"retryCount"`
	LastError         *string    `json:"lastError,omitempty"`
	NextEligibleAt    *time.Time `json:"nextEligibleAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type listFailedResponse struct {
	Data []recordResponse `json:"data"`
}

func (h *RecordHandler) CaptureRecord(c *fiber.Ctx) error {
	var req captureRecordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	input := service.CaptureInput{
		EntityID:          strings.TrimSpace(req.EntityID),
		DeviceID:          strings.TrimSpace(req.DeviceID),
		Payload:           req.Payload,
		ArtifactLocalPath: req.ArtifactLocalPath,
	}

	if req.CapturedAt != nil {
		capturedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.CapturedAt))
		if err != nil {
			return toHTTPError(fmt.Errorf("%w: capturedAt must be RFC3339", domain.ErrValidation))
		}
		input.CapturedAt = capturedAt
	}

	ctx := observability.WithCorrelationID(c.Context(), requestCorrelationID(c))
	rec, err := h.capture.Submit(ctx, input)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toRecordResponse(rec))
}

func (h *RecordHandler) ListFailedRecords(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultFailedLimit)
	if limit < 1 || limit > maxFailedLimit {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxFailedLimit))
	}

	records, err := h.artifacts.ListFailedPermanent(c.Context(), limit)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listFailedResponse{Data: toRecordResponses(records)})
}

func (h *RecordHandler) PurgeRecord(c *fiber.Ctx) error {
	localID, err := strconv.ParseUint(strings.TrimSpace(c.Params("id")), 10, 64)
	if err != nil {
		return toHTTPError(fmt.Errorf("%w: id must be a positive integer", domain.ErrValidation))
	}

	if err := h.artifacts.Purge(c.Context(), localID); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"localId": localID,
		"purged":  true,
	})
}

func toRecordResponses(records []domain.Record) []recordResponse {
	responses := make([]recordResponse, 0, len(records))
	for _, record := range records {
		r := record
		responses = append(responses, toRecordResponse(&r))
	}
	return responses
}

func toRecordResponse(rec *domain.Record) recordResponse {
	if rec == nil {
		return recordResponse{}
	}

	return recordResponse{
		LocalID:           rec.LocalID,
		EntityID:          rec.EntityID,
		DeviceID:          rec.DeviceID,
		CapturedAt:        rec.CapturedAt,
		DedupKey:          rec.DedupKey,
		SyncState:         rec.SyncState.String(),
		RemoteID:          rec.RemoteID,
		ArtifactRemoteURL: rec.ArtifactRemoteURL,
		RetryCount:        rec.RetryCount,
		LastError:         rec.LastError,
		NextEligibleAt:    rec.NextEligibleAt,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
