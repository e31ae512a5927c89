package core

import (
	"context"

	"github.com/dkeye/CoWatch/internal/domain"
)

// Catalog is the video store the room resolves ids against.
type Catalog interface {
	List(ctx context.Context) ([]domain.Video, error)
	Lookup(ctx context.Context, id domain.VideoID) (domain.Video, bool, error)
	Add(ctx context.Context, v domain.Video) error
	Delete(ctx context.Context, id domain.VideoID) (bool, error)
}

// StateStore persists the authoritative playback state between runs.
type StateStore interface {
	LoadState(ctx context.Context) (domain.PlaybackState, error)
	SaveState(ctx context.Context, s domain.PlaybackState) error
}

// PublishResult reports delivery stats/backpressure to the room.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}
