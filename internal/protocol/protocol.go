// Package protocol defines the {type, data} envelope exchanged over the
// websocket and the payload of every message type.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

type Type string

const (
	TypeInit         Type = "init"
	TypeSyncState    Type = "syncState"
	TypePlay         Type = "play"
	TypePause        Type = "pause"
	TypeSeek         Type = "seek"
	TypeChangeVideo  Type = "changeVideo"
	TypeUpdateState  Type = "updateState"
	TypePlayerReady  Type = "playerReady"
	TypeHeartbeat    Type = "heartbeat"
	TypeUserLeave    Type = "userLeave"
	TypeNotification Type = "notification"
	TypeNewVideo     Type = "newVideo"
	TypeVideoDeleted Type = "videoDeleted"
	TypeStop         Type = "stop"
	TypeRole         Type = "role"
	TypeError        Type = "error"
)

var known = map[Type]struct{}{
	TypeInit: {}, TypeSyncState: {}, TypePlay: {}, TypePause: {}, TypeSeek: {},
	TypeChangeVideo: {}, TypeUpdateState: {}, TypePlayerReady: {}, TypeHeartbeat: {},
	TypeUserLeave: {}, TypeNotification: {}, TypeNewVideo: {}, TypeVideoDeleted: {},
	TypeStop: {}, TypeRole: {}, TypeError: {},
}

// Known reports whether t is part of the message catalog.
func Known(t Type) bool {
	_, ok := known[t]
	return ok
}

// Envelope is the outer wire object.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Encode marshals payload under the given type. A nil payload encodes as {}.
func Encode(t Type, payload any) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Data: data})
}

// MustEncode is Encode for payloads that are known to marshal.
func MustEncode(t Type, payload any) []byte {
	b, err := Encode(t, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// Parse reads the envelope only; the payload is decoded later with Decode.
func Parse(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if !Known(env.Type) {
		return env, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return env, nil
}

// Decode unmarshals the payload into dst and runs its validate tags.
func (e Envelope) Decode(dst any) error {
	data := e.Data
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, e.Type, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, e.Type, err)
	}
	return nil
}
