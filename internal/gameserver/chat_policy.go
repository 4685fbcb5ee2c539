package gameserver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/proxsync/internal/game/moderation"
)

// DefaultChatMaxLength bounds a chat message in runes.
const DefaultChatMaxLength = 500

var (
	// ErrChatRejected wraps every reason a chat message is not routed.
	ErrChatRejected = errors.New("chat rejected")
	// ErrChatRateLimited is returned when a connection exceeds its chat rate.
	ErrChatRateLimited = fmt.Errorf("%w: rate limit exceeded", ErrChatRejected)
)

// ChatPolicy bounds and filters chat before it is routed: length
// validation, a per-connection rate limit, and optional word censoring.
// A ChatPolicy is safe for concurrent use; the limiters it hands out are
// owned by one connection each.
type ChatPolicy struct {
	maxLength int
	perSecond rate.Limit
	burst     int
	moderator *moderation.Moderator
	validate  *validator.Validate
	rule      string
}

// NewChatPolicy creates a ChatPolicy.
//
// Precondition: maxLength <= 0 selects DefaultChatMaxLength. perSecond <= 0
// disables rate limiting. moderator may be nil.
// Postcondition: Returns a ready ChatPolicy.
func NewChatPolicy(maxLength int, perSecond float64, burst int, moderator *moderation.Moderator) *ChatPolicy {
	if maxLength <= 0 {
		maxLength = DefaultChatMaxLength
	}
	if burst <= 0 {
		burst = 1
	}
	return &ChatPolicy{
		maxLength: maxLength,
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		moderator: moderator,
		validate:  validator.New(),
		rule:      fmt.Sprintf("required,max=%d", maxLength),
	}
}

// MaxLength returns the maximum message length in runes.
func (p *ChatPolicy) MaxLength() int {
	return p.maxLength
}

// NewLimiter returns a fresh limiter for one connection, or nil when rate
// limiting is disabled.
func (p *ChatPolicy) NewLimiter() *rate.Limiter {
	if p.perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(p.perSecond, p.burst)
}

// Apply checks message against the policy and returns the text to route.
//
// Precondition: limiter is the sender's own limiter or nil.
// Postcondition: Returns the (possibly censored) message, or an error
// wrapping ErrChatRejected. A rejected message consumes no rate budget
// unless it was rejected by the limiter itself.
func (p *ChatPolicy) Apply(limiter *rate.Limiter, message string) (string, error) {
	message = strings.TrimSpace(message)
	if err := p.validate.Var(message, p.rule); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			switch verrs[0].Tag() {
			case "required":
				return "", fmt.Errorf("%w: message is empty", ErrChatRejected)
			case "max":
				return "", fmt.Errorf("%w: message exceeds %d characters", ErrChatRejected, p.maxLength)
			}
		}
		return "", fmt.Errorf("%w: %v", ErrChatRejected, err)
	}
	if limiter != nil && !limiter.Allow() {
		return "", ErrChatRateLimited
	}
	if p.moderator != nil {
		message = p.moderator.Censor(message)
	}
	return message, nil
}
