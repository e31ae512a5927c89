package app

import "errors"

var (
	ErrNoSession     = errors.New("no such session")
	ErrVideoNotFound = errors.New("video not found")
)
