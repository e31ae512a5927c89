package domain

// PlaybackState is the authoritative {videoId, position, playing} triple.
// An empty VideoID means nothing is selected.
type PlaybackState struct {
	VideoID  VideoID `json:"id,omitempty" yaml:"id"`
	Position float64 `json:"position" yaml:"position"`
	Playing  bool    `json:"playing" yaml:"playing"`
}

func (s PlaybackState) HasVideo() bool { return s.VideoID != "" }

// Cleared returns the state with no video selected.
func Cleared() PlaybackState { return PlaybackState{} }
