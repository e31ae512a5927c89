package client

import (
	"time"

	"github.com/dkeye/CoWatch/internal/domain"
)

type LocalState int

const (
	Idle LocalState = iota
	Loading
	Ready
	PlayingLocal
	PausedLocal
)

func (s LocalState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case PlayingLocal:
		return "playing"
	case PausedLocal:
		return "paused"
	default:
		return "unknown"
	}
}

// Loaded reports whether the player can take commands.
func (s LocalState) Loaded() bool { return s >= Ready }

// ClientView is everything the viewer knows about the shared room.
type ClientView struct {
	State   LocalState
	Current domain.VideoID
	Pending *domain.PlaybackState

	Leader       bool
	Users        int
	Videos       []domain.Video
	AutoPlayNext bool

	// NetworkDelay is the last measured round trip.
	NetworkDelay   time.Duration
	DelayThreshold time.Duration
}

func (v *ClientView) video(id domain.VideoID) (domain.Video, bool) {
	for _, video := range v.Videos {
		if video.ID == id {
			return video, true
		}
	}
	return domain.Video{}, false
}

// next returns the catalog entry after id.
func (v *ClientView) next(id domain.VideoID) (domain.Video, bool) {
	for i, video := range v.Videos {
		if video.ID == id && i+1 < len(v.Videos) {
			return v.Videos[i+1], true
		}
	}
	return domain.Video{}, false
}

func (v *ClientView) addVideo(video domain.Video) {
	if _, ok := v.video(video.ID); ok {
		return
	}
	v.Videos = append(v.Videos, video)
}

func (v *ClientView) removeVideo(id domain.VideoID) {
	for i, video := range v.Videos {
		if video.ID == id {
			v.Videos = append(v.Videos[:i], v.Videos[i+1:]...)
			return
		}
	}
}

func (v ClientView) clone() ClientView {
	v.Videos = append([]domain.Video(nil), v.Videos...)
	if v.Pending != nil {
		p := *v.Pending
		v.Pending = &p
	}
	return v
}
