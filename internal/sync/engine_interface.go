package sync

import (
	"context"

	"github.com/retailpoint/possync/internal/models"
)

// EngineInterface is the engine surface consumed by the scheduler and the
// service layer; split out so tests can substitute a fake.
type EngineInterface interface {
	SyncOfflineData(ctx context.Context) error
	Status(ctx context.Context) models.SyncStatus
	InProgress() bool
}

var _ EngineInterface = (*Engine)(nil)
