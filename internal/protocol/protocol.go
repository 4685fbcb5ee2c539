// Package protocol defines the frames exchanged between participants and the
// server. Every frame is a JSON envelope {"type": ..., "data": ...}; all
// transports carry the same envelope.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cory-johannsen/proxsync/internal/game/spatial"
)

// Frame types.
const (
	// TypeInit is sent once to a new connection: its id and the full roster.
	TypeInit = "init"
	// TypePlayerJoined announces a new participant to everyone else.
	TypePlayerJoined = "playerJoined"
	// TypeMove is a client position update.
	TypeMove = "move"
	// TypePlayerMoved is the position delta broadcast to everyone.
	TypePlayerMoved = "playerMoved"
	// TypePlayerLeft announces a disconnect.
	TypePlayerLeft = "playerLeft"
	// TypeChatMessage is used in both directions: request from the client,
	// routed event from the server.
	TypeChatMessage = "chatMessage"
	// TypeError tells a client its request was rejected.
	TypeError = "error"
)

var (
	// ErrMalformedFrame is returned for frames that are not a valid envelope.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownType is returned for envelopes with an unrecognised type.
	ErrUnknownType = errors.New("unknown frame type")
)

// Envelope is the outer wire structure of every frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PlayerState is one participant's identity and position.
type PlayerState struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Init is the payload of TypeInit.
type Init struct {
	PlayerID string        `json:"playerId"`
	Players  []PlayerState `json:"players"`
}

// PlayerLeft is the payload of TypePlayerLeft.
type PlayerLeft struct {
	ID string `json:"id"`
}

// Move is the payload of a client TypeMove. Both coordinates are required.
type Move struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// ChatRequest is the payload of a client TypeChatMessage.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatEvent is the payload of a server TypeChatMessage.
type ChatEvent struct {
	SenderID  string `json:"senderId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorEvent is the payload of TypeError.
type ErrorEvent struct {
	Message string `json:"message"`
}

// Encode builds a frame of the given type around payload.
//
// Postcondition: Returns the JSON encoding of the envelope or a non-nil error.
func Encode(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", msgType, err)
	}
	frame, err := json.Marshal(Envelope{Type: msgType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", msgType, err)
	}
	return frame, nil
}

// Decode parses the outer envelope of a frame.
//
// Postcondition: Returns an envelope with a non-empty Type, or an error
// wrapping ErrMalformedFrame.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return env, nil
}

// DecodeData unmarshals the envelope payload into v.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrMalformedFrame, e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrMalformedFrame, e.Type, err)
	}
	return nil
}

// Position returns the requested coordinates.
//
// Postcondition: Returns an error wrapping ErrMalformedFrame when either
// coordinate is missing.
func (m Move) Position() (spatial.Position, error) {
	if m.X == nil || m.Y == nil {
		return spatial.Position{}, fmt.Errorf("%w: move requires x and y", ErrMalformedFrame)
	}
	return spatial.Position{X: *m.X, Y: *m.Y}, nil
}

// NewMove builds a Move payload for pos.
func NewMove(pos spatial.Position) Move {
	x, y := pos.X, pos.Y
	return Move{X: &x, Y: &y}
}
