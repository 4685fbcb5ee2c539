// Package session provides the authoritative registry of connected
// participants and the per-connection outbound frame queues.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultOutboxSize is the frame capacity used when a non-positive size is requested.
const DefaultOutboxSize = 64

var (
	// ErrOutboxClosed is returned by Push and Prime after Close.
	ErrOutboxClosed = errors.New("outbox closed")
	// ErrOutboxFull is returned when the outbox cannot accept another frame.
	ErrOutboxFull = errors.New("outbox full")
)

// Outbox queues encoded frames for one connection. A single writer drains
// Frames and writes them to the transport in FIFO order.
//
// An Outbox starts held: frames pushed before Prime are parked and released
// immediately after the frame given to Prime, so the primed frame is always
// the first one the writer sees.
type Outbox struct {
	id     string
	frames chan []byte
	mu     sync.Mutex
	held   [][]byte
	primed bool
	closed bool
}

// NewOutbox creates a held Outbox for the given connection id.
//
// Precondition: id must be non-empty.
// Postcondition: Returns an Outbox with an open frames channel of capacity size
// (DefaultOutboxSize when size <= 0).
func NewOutbox(id string, size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		id:     id,
		frames: make(chan []byte, size),
	}
}

// ID returns the connection id the outbox belongs to.
func (o *Outbox) ID() string {
	return o.id
}

// Push enqueues frame without blocking.
//
// Postcondition: frame is queued (or parked while held), or ErrOutboxClosed /
// ErrOutboxFull is returned.
func (o *Outbox) Push(frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s: %w", o.id, ErrOutboxClosed)
	}
	if !o.primed {
		// One slot stays reserved for the primed frame.
		if len(o.held) >= cap(o.frames)-1 {
			return fmt.Errorf("outbox %s: %w", o.id, ErrOutboxFull)
		}
		o.held = append(o.held, frame)
		return nil
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		return fmt.Errorf("outbox %s: %w", o.id, ErrOutboxFull)
	}
}

// Prime enqueues first ahead of every parked frame and releases the hold.
// Calling Prime on an already primed outbox behaves like Push.
//
// Postcondition: first is the next frame on Frames, followed by the parked
// frames in push order.
func (o *Outbox) Prime(first []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s: %w", o.id, ErrOutboxClosed)
	}
	if o.primed {
		select {
		case o.frames <- first:
			return nil
		default:
			return fmt.Errorf("outbox %s: %w", o.id, ErrOutboxFull)
		}
	}

	// The channel is empty while held and held never exceeds cap-1 frames,
	// so none of these sends can block.
	o.frames <- first
	for _, frame := range o.held {
		o.frames <- frame
	}
	o.held = nil
	o.primed = true
	return nil
}

// Frames returns the read-only frame channel. It is closed by Close.
func (o *Outbox) Frames() <-chan []byte {
	return o.frames
}

// Close stops the outbox. Frames already queued remain readable until drained.
//
// Postcondition: The frames channel is closed; further Push calls fail. Idempotent.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		o.held = nil
		close(o.frames)
	}
	return nil
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
