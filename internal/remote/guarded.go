package remote

import (
	"context"
	"errors"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/breaker"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/domain"
)

// Guarded wraps a Client so every endpoint runs under its own circuit
// breaker. Callers see breaker.ErrOpen when an endpoint is isolated.
type Guarded struct {
	inner    Client
	breakers *breaker.Registry
}

func NewGuarded(inner Client, breakers *breaker.Registry) *Guarded {
	return &Guarded{inner: inner, breakers: breakers}
}

func (g *Guarded) LookupEntity(ctx context.Context, naturalKey string) (string, error) {
	var entityID string
	var notFound error

	err := g.breakers.Get(EndpointEntityLookup).Do(ctx, func(ctx context.Context) error {
		id, callErr := g.inner.LookupEntity(ctx, naturalKey)
		if errors.Is(callErr, domain.ErrNotFound) {
			// The endpoint answered; an unknown entity is not an
			// endpoint failure.
			notFound = callErr
			return nil
		}
		entityID = id
		return callErr
	})
	if err != nil {
		return "", err
	}
	if notFound != nil {
		return "", notFound
	}
	return entityID, nil
}

func (g *Guarded) UploadArtifact(ctx context.Context, localPath, pathHint string) (string, error) {
	var remoteURL string
	err := g.breakers.Get(EndpointArtifactUpload).Do(ctx, func(ctx context.Context) error {
		var callErr error
		remoteURL, callErr = g.inner.UploadArtifact(ctx, localPath, pathHint)
		return callErr
	})
	return remoteURL, err
}

func (g *Guarded) CreateRecord(ctx context.Context, entityID string, payload RecordPayload, dedupKey string) (string, error) {
	var remoteID string
	err := g.breakers.Get(EndpointRecordCreate).Do(ctx, func(ctx context.Context) error {
		var callErr error
		remoteID, callErr = g.inner.CreateRecord(ctx, entityID, payload, dedupKey)
		return callErr
	})
	return remoteID, err
}
