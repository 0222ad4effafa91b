package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// Event kinds with relay-side policy attached to them.
const (
	KindProfile     = 0
	KindContactList = 3
	KindDeletion    = 5
	KindAuth        = 22242
)

// Event is an immutable, content-addressed record published by a signing
// identity. ID is the hex sha256 of the canonical serialization; the relay
// never mutates a stored event except by tombstoning.
type Event struct {
	ID        string     `json:"id"`
	Kind      int        `json:"kind"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Content   string     `json:"content"`
	Tags      [][]string `json:"tags"`
	Sig       string     `json:"sig,omitempty"`
}

// Tag returns the value of the first tag with the given name, or "".
func (e *Event) Tag(name string) string {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}

// TagValues returns every value carried by tags of the given name.
func (e *Event) TagValues(name string) []string {
	var vals []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			vals = append(vals, t[1])
		}
	}
	return vals
}

// DTag returns the discriminator tag used by parameterized replaceable kinds.
func (e *Event) DTag() string { return e.Tag("d") }

// ExpiresAt returns the unix timestamp of the expiration tag, or 0 if the
// event does not expire. A malformed expiration value reads as 0.
func (e *Event) ExpiresAt() int64 {
	v := e.Tag("expiration")
	if v == "" {
		return 0
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ts < 0 {
		return 0
	}
	return ts
}

// IsReplaceable reports whether at most one event per (pubkey, kind) is
// retained for this kind.
func (e *Event) IsReplaceable() bool {
	return e.Kind == KindProfile || e.Kind == KindContactList
}

// IsParamReplaceable reports whether the event is in the parameterized
// replaceable range and carries a d tag, making (pubkey, kind, d) the
// uniqueness key.
func (e *Event) IsParamReplaceable() bool {
	return e.Kind >= 30000 && e.Kind <= 39999 && e.DTag() != ""
}

// IsEphemeral reports whether the event is relayed live but never stored.
func (e *Event) IsEphemeral() bool {
	return e.Kind >= 20000 && e.Kind <= 29999
}

// ComputeID returns the hex sha256 of the canonical event serialization:
// [0, pubkey, created_at, kind, tags, content].
func (e *Event) ComputeID() (string, error) {
	tags := e.Tags
	if tags == nil {
		tags = [][]string{}
	}
	ser, err := json.Marshal([]any{0, e.Pubkey, e.CreatedAt, e.Kind, tags, e.Content})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(ser)
	return hex.EncodeToString(sum[:]), nil
}

// Subscription is one client subscription: an id scoped to a single
// connection and the filters it carries. An event matches the subscription
// if it matches any one of the filters.
type Subscription struct {
	ID      string
	Filters []Filter
}

// Matches reports whether the event matches any filter of the subscription.
func (s *Subscription) Matches(e *Event) bool {
	for i := range s.Filters {
		if s.Filters[i].Matches(e) {
			return true
		}
	}
	return false
}
