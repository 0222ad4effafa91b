package relay

import (
	"regexp"
	"time"
)

var hex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Validation window defaults for the created_at sanity check.
const (
	DefaultMaxFutureSkew = 15 * time.Minute
	DefaultMaxEventAge   = 7 * 24 * time.Hour
)

// Validator is the structural and temporal admission gate for raw event
// payloads. It never returns an error and never panics; any malformed shape
// simply fails validation.
type Validator struct {
	clock Clock
	// MaxFutureSkew bounds how far into the future created_at may point.
	MaxFutureSkew time.Duration
	// MaxAge bounds how old created_at may be. Zero disables the floor.
	MaxAge time.Duration
}

// NewValidator creates a Validator with the default created_at window.
func NewValidator(clock Clock) *Validator {
	return &Validator{
		clock:         clock,
		MaxFutureSkew: DefaultMaxFutureSkew,
		MaxAge:        DefaultMaxEventAge,
	}
}

// ValidateRaw checks an untyped payload, fail-closed: it must be an object
// with a 64-hex id, an integer kind, a 64-hex pubkey, an integer created_at
// inside the sanity window, string-sequence tags and a string content.
func (v *Validator) ValidateRaw(payload any) bool {
	obj, ok := payload.(map[string]any)
	if !ok {
		return false
	}
	id, ok := obj["id"].(string)
	if !ok || !hex64.MatchString(id) {
		return false
	}
	kind, ok := obj["kind"].(float64)
	if !ok || kind != float64(int64(kind)) {
		return false
	}
	pubkey, ok := obj["pubkey"].(string)
	if !ok || !hex64.MatchString(pubkey) {
		return false
	}
	createdAt, ok := obj["created_at"].(float64)
	if !ok || createdAt != float64(int64(createdAt)) {
		return false
	}
	tags, ok := obj["tags"].([]any)
	if !ok {
		return false
	}
	for _, t := range tags {
		elems, ok := t.([]any)
		if !ok {
			return false
		}
		for _, el := range elems {
			if _, ok := el.(string); !ok {
				return false
			}
		}
	}
	if _, ok := obj["content"].(string); !ok {
		return false
	}
	return v.checkWindow(int64(createdAt))
}

// Validate checks an already-decoded event against the same rules as
// ValidateRaw.
func (v *Validator) Validate(e *Event) bool {
	if e == nil {
		return false
	}
	if !hex64.MatchString(e.ID) || !hex64.MatchString(e.Pubkey) {
		return false
	}
	return v.checkWindow(e.CreatedAt)
}

func (v *Validator) checkWindow(createdAt int64) bool {
	now := v.clock.Now().Unix()
	if createdAt > now+int64(v.MaxFutureSkew/time.Second) {
		return false
	}
	if v.MaxAge > 0 && createdAt < now-int64(v.MaxAge/time.Second) {
		return false
	}
	return true
}
