package protocol

import "github.com/dkeye/CoWatch/internal/domain"

// PositionData is the payload of play, pause, seek and userLeave.
type PositionData struct {
	Position float64 `json:"position" validate:"gte=0"`
}

type ChangeVideoRequest struct {
	VideoID       domain.VideoID `json:"videoId" validate:"required"`
	StartPosition *float64       `json:"startPosition,omitempty" validate:"omitempty,gte=0"`
}

// ChangeVideoData is the server's rebroadcast of a change, with the
// resulting state.
type ChangeVideoData struct {
	VideoID  domain.VideoID `json:"videoId"`
	Position float64        `json:"position"`
	Playing  bool           `json:"playing"`
}

type UpdateStateData struct {
	Position float64 `json:"position" validate:"gte=0"`
	Playing  bool    `json:"playing"`
}

// HeartbeatData carries the client's send time on requests and the
// server's clock on replies, both unix milliseconds.
type HeartbeatData struct {
	Timestamp int64 `json:"timestamp" validate:"gte=0"`
}

type ReadyData struct{}

type InitData struct {
	Videos         []domain.Video       `json:"videos"`
	CurrentVideo   domain.PlaybackState `json:"currentVideo"`
	ConnectedUsers int                  `json:"connectedUsers"`
	IsFirstUser    bool                 `json:"isFirstUser"`
	AutoPlayNext   bool                 `json:"autoPlayNext"`
	DelayThreshold int64                `json:"networkDelayThreshold,omitempty"`
}

type SyncStateData struct {
	ID        domain.VideoID `json:"id"`
	Position  float64        `json:"position"`
	Playing   bool           `json:"playing"`
	Timestamp int64          `json:"timestamp"`
}

func (d SyncStateData) State() domain.PlaybackState {
	return domain.PlaybackState{VideoID: d.ID, Position: d.Position, Playing: d.Playing}
}

type NotificationData struct {
	Message string `json:"message"`
	Users   int    `json:"users"`
}

type NewVideoData struct {
	Video domain.Video `json:"video"`
}

type VideoDeletedData struct {
	VideoID domain.VideoID `json:"videoId"`
}

type RoleData struct {
	IsLeader bool `json:"isLeader"`
}

type ErrorData struct {
	Error string `json:"error"`
}

const ErrCodeVideoNotFound = "video_not_found"
