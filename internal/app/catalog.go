package app

import (
	"context"
	"fmt"

	"github.com/dkeye/CoWatch/internal/domain"
	"github.com/dkeye/CoWatch/internal/protocol"
)

var stopFrame = protocol.MustEncode(protocol.TypeStop, nil)

func (r *Room) Videos(ctx context.Context) ([]domain.Video, error) {
	return r.catalog.List(ctx)
}

// AddVideo stores a new catalog entry and announces it.
func (r *Room) AddVideo(ctx context.Context, name, url string) (*domain.Video, error) {
	v, err := domain.NewVideo(name, url)
	if err != nil {
		return nil, err
	}
	if err := r.catalog.Add(ctx, *v); err != nil {
		return nil, fmt.Errorf("add video: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast(protocol.TypeNewVideo, protocol.NewVideoData{Video: *v}, "")
	r.saveLocked(ctx)
	r.logger.Info().Str("video", string(v.ID)).Str("name", v.Name).Msg("video added")
	return v, nil
}

// DeleteVideo removes id from the catalog. Deleting the current video moves
// the room to the first remaining one, paused at 0, or stops it when the
// catalog is now empty.
func (r *Room) DeleteVideo(ctx context.Context, id domain.VideoID) (bool, error) {
	video, found, err := r.catalog.Lookup(ctx, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if _, err := r.catalog.Delete(ctx, id); err != nil {
		return false, fmt.Errorf("delete video: %w", err)
	}
	remaining, err := r.catalog.List(ctx)
	if err != nil {
		return true, fmt.Errorf("list videos: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.VideoID == id {
		if len(remaining) > 0 {
			r.state = domain.PlaybackState{VideoID: remaining[0].ID}
			r.broadcast(protocol.TypeChangeVideo, protocol.ChangeVideoData{
				VideoID:  remaining[0].ID,
				Position: 0,
				Playing:  false,
			}, "")
		} else {
			r.state = domain.Cleared()
			r.broadcastFrame(stopFrame, "")
		}
	}
	r.broadcast(protocol.TypeNotification, protocol.NotificationData{
		Message: fmt.Sprintf("video %q was deleted", video.Name),
		Users:   r.reg.Len(),
	}, "")
	r.broadcast(protocol.TypeVideoDeleted, protocol.VideoDeletedData{VideoID: id}, "")
	r.saveLocked(ctx)
	r.logger.Info().Str("video", string(id)).Str("name", video.Name).Msg("video deleted")
	return true, nil
}
