package service

import (
	"context"
	"sync"
	"time"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/domain"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/remote"
)

type fakeRecordRepo struct {
	appendFn         func(ctx context.Context, r *domain.Record) error
	getByIDFn        func(ctx context.Context, localID uint64) (*domain.Record, error)
	transitionFn     func(ctx context.Context, localID uint64, expected, next domain.SyncState, fields map[string]any) (bool, error)
	setArtifactURLFn func(ctx context.Context, localID uint64, remoteURL string) error
	queryRecoverFn   func(ctx context.Context) ([]domain.Record, error)
	dueForSyncFn     func(ctx context.Context, now time.Time, limit int) ([]domain.Record, error)
	reclaimStaleFn   func(ctx context.Context, abandonedBefore, now time.Time) (int64, error)
	listFailedPermFn func(ctx context.Context, limit int) ([]domain.Record, error)
	countByStateFn   func(ctx context.Context) (map[domain.SyncState]int64, error)
	purgeRecordFn    func(ctx context.Context, localID uint64) error
}

func (f *fakeRecordRepo) Append(ctx context.Context, r *domain.Record) error {
	if f.appendFn != nil {
		return f.appendFn(ctx, r)
	}
	return nil
}

func (f *fakeRecordRepo) GetByID(ctx context.Context, localID uint64) (*domain.Record, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, localID)
	}
	return &domain.Record{LocalID: localID}, nil
}

func (f *fakeRecordRepo) Transition(ctx context.Context, localID uint64, expected, next domain.SyncState, fields map[string]any) (bool, error) {
	if f.transitionFn != nil {
		return f.transitionFn(ctx, localID, expected, next, fields)
	}
	return true, nil
}

func (f *fakeRecordRepo) SetArtifactRemoteURL(ctx context.Context, localID uint64, remoteURL string) error {
	if f.setArtifactURLFn != nil {
		return f.setArtifactURLFn(ctx, localID, remoteURL)
	}
	return nil
}

func (f *fakeRecordRepo) QueryRecoverable(ctx context.Context) ([]domain.Record, error) {
	if f.queryRecoverFn != nil {
		return f.queryRecoverFn(ctx)
	}
	return nil, nil
}

func (f *fakeRecordRepo) DueForSync(ctx context.Context, now time.Time, limit int) ([]domain.Record, error) {
	if f.dueForSyncFn != nil {
		return f.dueForSyncFn(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeRecordRepo) ReclaimStale(ctx context.Context, abandonedBefore, now time.Time) (int64, error) {
	if f.reclaimStaleFn != nil {
		return f.reclaimStaleFn(ctx, abandonedBefore, now)
	}
	return 0, nil
}

func (f *fakeRecordRepo) ListFailedPermanent(ctx context.Context, limit int) ([]domain.Record, error) {
	if f.listFailedPermFn != nil {
		return f.listFailedPermFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeRecordRepo) CountByState(ctx context.Context) (map[domain.SyncState]int64, error) {
	if f.countByStateFn != nil {
		return f.countByStateFn(ctx)
	}
	return map[domain.SyncState]int64{}, nil
}

func (f *fakeRecordRepo) PurgeRecord(ctx context.Context, localID uint64) error {
	if f.purgeRecordFn != nil {
		return f.purgeRecordFn(ctx, localID)
	}
	return nil
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []domain.SyncAttempt
	createFn func(ctx context.Context, a *domain.SyncAttempt) error
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.SyncAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *a)
	return nil
}

func (f *fakeAttemptRepo) GetByRecordID(ctx context.Context, recordLocalID uint64) ([]domain.SyncAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.SyncAttempt
	for _, a := range f.attempts {
		if a.RecordLocalID == recordLocalID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAttemptRepo) recorded() []domain.SyncAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SyncAttempt(nil), f.attempts...)
}

type fakeRemoteClient struct {
	lookupEntityFn   func(ctx context.Context, naturalKey string) (string, error)
	uploadArtifactFn func(ctx context.Context, localPath, pathHint string) (string, error)
	createRecordFn   func(ctx context.Context, entityID string, payload remote.RecordPayload, dedupKey string) (string, error)
}

func (f *fakeRemoteClient) LookupEntity(ctx context.Context, naturalKey string) (string, error) {
	if f.lookupEntityFn != nil {
		return f.lookupEntityFn(ctx, naturalKey)
	}
	return "entity-1", nil
}

func (f *fakeRemoteClient) UploadArtifact(ctx context.Context, localPath, pathHint string) (string, error) {
	if f.uploadArtifactFn != nil {
		return f.uploadArtifactFn(ctx, localPath, pathHint)
	}
	return "https://cloud.example/artifacts/a-1", nil
}

func (f *fakeRemoteClient) CreateRecord(ctx context.Context, entityID string, payload remote.RecordPayload, dedupKey string) (string, error) {
	if f.createRecordFn != nil {
		return f.createRecordFn(ctx, entityID, payload, dedupKey)
	}
	return "remote-1", nil
}

type fakeConnectivity struct {
	onlineFn func(ctx context.Context) bool
}

func (f *fakeConnectivity) Online(ctx context.Context) bool {
	if f.onlineFn != nil {
		return f.onlineFn(ctx)
	}
	return true
}

type fakeArtifactCleaner struct {
	mu        sync.Mutex
	deletedID []uint64
	deleteFn  func(ctx context.Context, localID uint64) error
}

func (f *fakeArtifactCleaner) DeleteIfSynced(ctx context.Context, localID uint64) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, localID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedID = append(f.deletedID, localID)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	synced []string
}

func (f *fakeNotifier) RecordSynced(ctx context.Context, entityID, remoteRecordID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, entityID+":"+remoteRecordID)
}
