package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/domain"
	"github.com/go-resty/resty/v2"
)

// Endpoint names, one circuit breaker each.
const (
	EndpointEntityLookup   = "entity-lookup"
	EndpointArtifactUpload = "artifact-upload"
	EndpointRecordCreate   = "record-create"
)

const defaultRemoteTimeout = 10 * time.Second

// RecordPayload is the attendance record body sent to the cloud store.
type RecordPayload struct {
	EntityID    string    `json:"entityId"`
	DeviceID    string    `json:"deviceId"`
	CapturedAt  time.Time `json:"capturedAt"`
	ArtifactURL *string   `json:"artifactUrl,omitempty"`
	Data        string    `json:"data,omitempty"`
	DedupKey    string    `json:"dedupKey"`
}

// Client is the cloud collaborator performing actual network calls.
// CreateRecord must be idempotent on the dedup key (upsert semantics).
type Client interface {
	LookupEntity(ctx context.Context, naturalKey string) (string, error)
	UploadArtifact(ctx context.Context, localPath, pathHint string) (string, error)
	CreateRecord(ctx context.Context, entityID string, payload RecordPayload, dedupKey string) (string, error)
}

// HTTPClient talks to the cloud backend over HTTP. Retries belong to the
// sync engine, not the transport, so the resty retry count stays zero.
type HTTPClient struct {
	client *resty.Client
}

func NewHTTPClient(baseURL, apiKey string) (*HTTPClient, error) {
	client := resty.New()
	client.SetTimeout(defaultRemoteTimeout)
	client.SetRetryCount(0)

	return NewHTTPClientWithClient(baseURL, apiKey, client)
}

func NewHTTPClientWithClient(baseURL, apiKey string, client *resty.Client) (*HTTPClient, error) {
	trimmedBaseURL := strings.TrimSpace(baseURL)
	if trimmedBaseURL == "" {
		return nil, fmt.Errorf("cloud base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedBaseURL); err != nil {
		return nil, fmt.Errorf("invalid cloud base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultRemoteTimeout)
	}
	client.SetRetryCount(0)
	client.SetBaseURL(trimmedBaseURL)
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}

	return &HTTPClient{client: client}, nil
}

type entityResponse struct {
	ID string `json:"id"`
}

type artifactResponse struct {
	URL string `json:"url"`
}

type recordResponse struct {
	ID string `json:"id"`
}

func (c *HTTPClient) LookupEntity(ctx context.Context, naturalKey string) (string, error) {
	if strings.TrimSpace(naturalKey) == "" {
		return "", fmt.Errorf("%w: natural key is required", domain.ErrValidation)
	}

	var result entityResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("key", naturalKey).
		SetResult(&result).
		Get("/v1/entities/lookup")
	if err != nil {
		return "", transportError(EndpointEntityLookup, err)
	}

	statusCode := response.StatusCode()
	if statusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: entity %q", domain.ErrNotFound, naturalKey)
	}
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return "", statusError(EndpointEntityLookup, statusCode, response.String())
	}
	if strings.TrimSpace(result.ID) == "" {
		return "", &Error{
			Endpoint:  EndpointEntityLookup,
			Message:   "lookup response missing entity id",
			Transient: false,
		}
	}

	return result.ID, nil
}

func (c *HTTPClient) UploadArtifact(ctx context.Context, localPath, pathHint string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		// Missing artifact cannot be fixed by retrying the upload.
		return "", &Error{
			Endpoint:  EndpointArtifactUpload,
			Message:   "failed to read local artifact",
			Transient: false,
			Cause:     err,
		}
	}

	hint := strings.TrimSpace(pathHint)
	if hint == "" {
		hint = filepath.Base(localPath)
	}

	var result artifactResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", hint, bytes.NewReader(data)).
		SetResult(&result).
		Post("/v1/artifacts")
	if err != nil {
		return "", transportError(EndpointArtifactUpload, err)
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return "", statusError(EndpointArtifactUpload, statusCode, response.String())
	}
	if strings.TrimSpace(result.URL) == "" {
		return "", &Error{
			Endpoint:  EndpointArtifactUpload,
			Message:   "upload response missing artifact url",
			Transient: true,
		}
	}

	return result.URL, nil
}

func (c *HTTPClient) CreateRecord(ctx context.Context, entityID string, payload RecordPayload, dedupKey string) (string, error) {
	if strings.TrimSpace(dedupKey) == "" {
		return "", fmt.Errorf("%w: dedup key is required", domain.ErrValidation)
	}

	payload.EntityID = entityID
	payload.DedupKey = dedupKey

	var result recordResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Idempotency-Key", dedupKey).
		SetBody(payload).
		SetResult(&result).
		Post("/v1/attendance")
	if err != nil {
		return "", transportError(EndpointRecordCreate, err)
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return "", statusError(EndpointRecordCreate, statusCode, response.String())
	}
	if strings.TrimSpace(result.ID) == "" {
		return "", &Error{
			Endpoint:  EndpointRecordCreate,
			Message:   "create response missing record id",
			Transient: true,
		}
	}

	return result.ID, nil
}

func transportError(endpoint string, err error) error {
	return &Error{
		Endpoint:  endpoint,
		Message:   "request failed",
		Transient: !errors.Is(err, context.Canceled),
		Cause:     err,
	}
}

func statusError(endpoint string, statusCode int, body string) error {
	return &Error{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Message:    statusErrorMessage(statusCode, strings.TrimSpace(body)),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}
