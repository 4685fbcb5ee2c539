// Package proximity selects the recipients of spatially scoped messages.
package proximity

import (
	"github.com/samber/lo"

	"github.com/cory-johannsen/proxsync/internal/game/session"
	"github.com/cory-johannsen/proxsync/internal/game/spatial"
)

// DefaultRadius is the chat radius used when none is configured.
const DefaultRadius = 200.0

// Router filters participants by distance from a sender.
// It holds no mutable state and is safe for concurrent use.
type Router struct {
	radius float64
}

// NewRouter returns a Router with the given inclusive radius.
//
// Precondition: radius must be > 0.
func NewRouter(radius float64) *Router {
	if radius <= 0 {
		panic("proximity.NewRouter: radius must be > 0")
	}
	return &Router{radius: radius}
}

// Radius returns the configured radius.
func (r *Router) Radius() float64 {
	return r.radius
}

// InRange reports whether b lies within the radius of a. The boundary is inclusive.
func (r *Router) InRange(a, b spatial.Position) bool {
	return spatial.Distance(a, b) <= r.radius
}

// Recipients returns the ids of every participant other than senderID whose
// position lies within the radius of senderPos, in the order of all.
//
// Postcondition: senderID is never in the result. O(len(all)).
func (r *Router) Recipients(senderID string, senderPos spatial.Position, all []session.Participant) []string {
	nearby := lo.Filter(all, func(p session.Participant, _ int) bool {
		return p.ID != senderID && r.InRange(senderPos, p.Position())
	})
	return lo.Map(nearby, func(p session.Participant, _ int) string {
		return p.ID
	})
}
