package link

import (
	"context"

	"Bt1QLink/model"
)

// Store is the key-value persistence consumed by the client: one session id
// per node plus one resumable snapshot per guild. cache.StateCache is the
// Redis implementation.
type Store interface {
	GetSession(ctx context.Context, nodeID string) (string, error)
	SetSession(ctx context.Context, nodeID, sessionID string) error
	DeleteSession(ctx context.Context, nodeID string) error

	GetSnapshot(ctx context.Context, guildID string) (*model.PlayerSnapshot, error)
	SetSnapshot(ctx context.Context, snapshot *model.PlayerSnapshot) error
	DeleteSnapshot(ctx context.Context, guildID string) error
}
