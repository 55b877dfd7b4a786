package service

import (
	"context"
	"fmt"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/breaker"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/domain"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/repository"
)

// StatusReport is a point-in-time view of the local queue and the circuit
// breakers, served by the sync status endpoint.
type StatusReport struct {
	Pending         int64              `json:"pending"`
	Queued          int64              `json:"queued"`
	InProgress      int64              `json:"inProgress"`
	Synced          int64              `json:"synced"`
	FailedPermanent int64              `json:"failedPermanent"`
	Breakers        []breaker.Snapshot `json:"breakers"`
}

type Status struct {
	records  repository.RecordRepository
	breakers *breaker.Registry
}

func NewStatus(records repository.RecordRepository, breakers *breaker.Registry) (*Status, error) {
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if breakers == nil {
		return nil, fmt.Errorf("breaker registry is required")
	}

	return &Status{records: records, breakers: breakers}, nil
}

func (s *Status) Report(ctx context.Context) (StatusReport, error) {
	counts, err := s.records.CountByState(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("failed to count records by state: %w", err)
	}

	return StatusReport{
		Pending:         counts[domain.StatePending],
		Queued:          counts[domain.StateQueued],
		InProgress:      counts[domain.StateInProgress],
		Synced:          counts[domain.StateSynced],
		FailedPermanent: counts[domain.StateFailedPermanent],
		Breakers:        s.breakers.Snapshots(),
	}, nil
}
