package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cory-johannsen/proxsync/internal/game/spatial"
)

// ErrDuplicateIdentity is returned by Add when the id is already registered.
// It indicates the transport reused an identity that is still live.
var ErrDuplicateIdentity = errors.New("duplicate identity")

// Participant is a point-in-time copy of one connected participant's state.
type Participant struct {
	// ID is the transport-assigned connection identity.
	ID string
	// X and Y are the participant's coordinates in the shared plane.
	X float64
	Y float64
	// LastUpdate is the time of the last position mutation (creation included).
	LastUpdate time.Time
}

// Position returns the participant's coordinates.
func (p Participant) Position() spatial.Position {
	return spatial.Position{X: p.X, Y: p.Y}
}

type entry struct {
	participant Participant
	seq         uint64
	outbox      *Outbox
}

// Registry is the single authoritative store of live participants.
// All methods are safe for concurrent use; every mutation runs under the
// write lock and no method performs I/O while holding it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq uint64
	spawn   spatial.Position
	now     func() time.Time
}

// NewRegistry creates an empty Registry that places new participants at spawn.
func NewRegistry(spawn spatial.Position) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		spawn:   spawn,
		now:     time.Now,
	}
}

// Spawn returns the default position assigned by Add.
func (r *Registry) Spawn() spatial.Position {
	return r.spawn
}

// Add registers a participant at the spawn position.
//
// Precondition: id must be non-empty. outbox may be nil for registry-only use.
// Postcondition: Returns the new participant and a snapshot taken in the same
// critical section (so it contains the new participant exactly once), or an
// error wrapping ErrDuplicateIdentity when id is already live.
func (r *Registry) Add(id string, outbox *Outbox) (Participant, []Participant, error) {
	return r.AddAt(id, r.spawn, outbox)
}

// AddAt registers a participant at pos. See Add.
func (r *Registry) AddAt(id string, pos spatial.Position, outbox *Outbox) (Participant, []Participant, error) {
	if id == "" {
		return Participant{}, nil, errors.New("participant id must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return Participant{}, nil, fmt.Errorf("participant %q: %w", id, ErrDuplicateIdentity)
	}

	r.nextSeq++
	p := Participant{ID: id, X: pos.X, Y: pos.Y, LastUpdate: r.now()}
	r.entries[id] = &entry{participant: p, seq: r.nextSeq, outbox: outbox}

	return p, r.snapshotLocked(), nil
}

// Update sets the participant's coordinates.
//
// Postcondition: Returns true when the participant exists and was updated;
// false (no-op) when id is not registered.
func (r *Registry) Update(id string, pos spatial.Position) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.participant.X = pos.X
	e.participant.Y = pos.Y
	e.participant.LastUpdate = r.now()
	return true
}

// Remove deletes the participant and closes its outbox.
//
// Postcondition: id is no longer registered. Returns the removed participant
// and true, or false when id was already absent (no-op).
func (r *Registry) Remove(id string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Participant{}, false
	}
	delete(r.entries, id)
	if e.outbox != nil {
		_ = e.outbox.Close()
	}
	return e.participant, true
}

// Get returns a copy of the participant registered under id.
func (r *Registry) Get(id string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Participant{}, false
	}
	return e.participant, true
}

// Snapshot returns a consistent copy of every live participant in join order.
func (r *Registry) Snapshot() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []Participant {
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *entry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})

	out := make([]Participant, len(entries))
	for i, e := range entries {
		out[i] = e.participant
	}
	return out
}

// Count returns the number of live participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Outbox returns the outbox of the participant registered under id.
func (r *Registry) Outbox(id string) (*Outbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok || e.outbox == nil {
		return nil, false
	}
	return e.outbox, true
}

// Outboxes returns the outboxes of all live participants except the excluded ids.
//
// Postcondition: The returned map is a copy and may be iterated without locking.
func (r *Registry) Outboxes(exclude ...string) map[string]*Outbox {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Outbox, len(r.entries))
	for id, e := range r.entries {
		if e.outbox == nil || slices.Contains(exclude, id) {
			continue
		}
		out[id] = e.outbox
	}
	return out
}
