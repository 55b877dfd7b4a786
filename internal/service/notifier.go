package service

import "context"

// Notifier is the downstream collaborator told when a record reaches the
// cloud store. Composition and delivery of the outbound message live
// outside this engine.
type Notifier interface {
	RecordSynced(ctx context.Context, entityID, remoteRecordID string)
}

type NopNotifier struct{}

func (NopNotifier) RecordSynced(ctx context.Context, entityID, remoteRecordID string) {}
