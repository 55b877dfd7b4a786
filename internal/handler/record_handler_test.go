package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/domain"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/service"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/transport"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type stubCaptureService struct {
	submitFn func(ctx context.Context, input service.CaptureInput) (*domain.Record, error)
}

func (s *stubCaptureService) Submit(ctx context.Context, input service.CaptureInput) (*domain.Record, error) {
	return s.submitFn(ctx, input)
}

type stubArtifactService struct {
	listFailedFn func(ctx context.Context, limit int) ([]domain.Record, error)
	purgeFn      func(ctx context.Context, localID uint64) error
}

func (s *stubArtifactService) ListFailedPermanent(ctx context.Context, limit int) ([]domain.Record, error) {
	if s.listFailedFn != nil {
		return s.listFailedFn(ctx, limit)
	}
	return nil, nil
}

func (s *stubArtifactService) Purge(ctx context.Context, localID uint64) error {
	if s.purgeFn != nil {
		return s.purgeFn(ctx, localID)
	}
	return nil
}

func newRecordTestApp(t *testing.T, capture CaptureService, artifacts ArtifactService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterRecordRoutes(app, capture, artifacts); err != nil {
		t.Fatalf("RegisterRecordRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func TestCaptureRecord(t *testing.T) {
	t.Parallel()

	capturedAt := time.Date(2026, 2, 1, 8, 30, 15, 0, time.UTC)
	capture := &stubCaptureService{
		submitFn: func(ctx context.Context, input service.CaptureInput) (*domain.Record, error) {
			if input.EntityID != "emp-7" {
				t.Fatalf("entityId = %s, want emp-7", input.EntityID)
			}
			if !input.CapturedAt.Equal(capturedAt) {
				t.Fatalf("capturedAt = %v, want %v", input.CapturedAt, capturedAt)
			}
			return &domain.Record{
				LocalID:    41,
				EntityID:   input.EntityID,
				DeviceID:   "device-a",
				CapturedAt: capturedAt,
				DedupKey:   "emp-7:1769934615:device-a",
				SyncState:  domain.StateSynced,
			}, nil
		},
	}

	app := newRecordTestApp(t, capture, &stubArtifactService{})

	body := `{"entityId":"emp-7","capturedAt":"2026-02-01T08:30:15Z","payload":"{\"confidence\":0.97}"}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/records", body)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(respBody))
	}

	var accepted map[string]any
	if err := json.Unmarshal(respBody, &accepted); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if accepted["localId"] != float64(41) {
		t.Fatalf("localId = %v, want 41", accepted["localId"])
	}
	if accepted["syncState"] != domain.StateSynced.String() {
		t.Fatalf("syncState = %v, want SYNCED", accepted["syncState"])
	}
}

func TestCaptureRecordValidation(t *testing.T) {
	t.Parallel()

	capture := &stubCaptureService{
		submitFn: func(ctx context.Context, input service.CaptureInput) (*domain.Record, error) {
			return nil, domain.ErrValidation
		},
	}

	app := newRecordTestApp(t, capture, &stubArtifactService{})

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/records", `{"entityId":""}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/records", `{"entityId":"emp-7","capturedAt":"not-a-time"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for bad timestamp", resp.StatusCode)
	}
}

func TestListFailedRecords(t *testing.T) {
	t.Parallel()

	errText := "422 unprocessable"
	artifacts := &stubArtifactService{
		listFailedFn: func(ctx context.Context, limit int) ([]domain.Record, error) {
			if limit != 50 {
				t.Fatalf("limit = %d, want default 50", limit)
			}
			return []domain.Record{
				{LocalID: 9, EntityID: "ghost", SyncState: domain.StateFailedPermanent, LastError: &errText},
			}, nil
		},
	}

	capture := &stubCaptureService{
		submitFn: func(ctx context.Context, input service.CaptureInput) (*domain.Record, error) {
			return nil, nil
		},
	}

	app := newRecordTestApp(t, capture, artifacts)

	resp, respBody := performRequest(t, app, http.MethodGet, "/v1/records/failed", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var listed listFailedResponse
	if err := json.Unmarshal(respBody, &listed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(listed.Data) != 1 {
		t.Fatalf("data length = %d, want 1", len(listed.Data))
	}
	if listed.Data[0].SyncState != domain.StateFailedPermanent.String() {
		t.Fatalf("syncState = %s, want FAILED_PERMANENT", listed.Data[0].SyncState)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/records/failed?limit=0", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid limit", resp.StatusCode)
	}
}

func TestPurgeRecord(t *testing.T) {
	t.Parallel()

	purged := []uint64{}
	artifacts := &stubArtifactService{
		purgeFn: func(ctx context.Context, localID uint64) error {
			if localID == 9 {
				purged = append(purged, localID)
				return nil
			}
			return domain.ErrConflict
		},
	}
	capture := &stubCaptureService{
		submitFn: func(ctx context.Context, input service.CaptureInput) (*domain.Record, error) {
			return nil, nil
		},
	}

	app := newRecordTestApp(t, capture, artifacts)

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/records/9/purge", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(purged) != 1 {
		t.Fatalf("purged = %v, want [9]", purged)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/records/10/purge", "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 for non-dead-lettered record", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/records/abc/purge", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for bad id", resp.StatusCode)
	}
}
