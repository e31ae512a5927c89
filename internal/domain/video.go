// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxVideoNameLen = 128
	MaxVideoURLLen  = 2048
)

var (
	ErrVideoNameEmpty   = errors.New("video name empty")
	ErrVideoNameTooLong = errors.New("video name too long")
	ErrVideoURLEmpty    = errors.New("video url empty")
	ErrVideoURLTooLong  = errors.New("video url too long")
)

type VideoID string

// Video is one catalog entry. URL is whatever the viewer's player can load.
type Video struct {
	ID           VideoID `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	URL          string  `json:"url" yaml:"url"`
	LastPlayTime float64 `json:"lastPlayTime" yaml:"last_play_time"`
}

// NewVideo validates name and url and assigns a fresh id.
func NewVideo(name, url string) (*Video, error) {
	name = strings.TrimSpace(name)
	url = strings.TrimSpace(url)
	if len(name) == 0 {
		return nil, ErrVideoNameEmpty
	}
	if len(name) > MaxVideoNameLen {
		return nil, ErrVideoNameTooLong
	}
	if len(url) == 0 {
		return nil, ErrVideoURLEmpty
	}
	if len(url) > MaxVideoURLLen {
		return nil, ErrVideoURLTooLong
	}
	return &Video{ID: VideoID(uuid.NewString()), Name: name, URL: url}, nil
}
