package relay

import "strings"

// Moderator applies the content moderation policy at ingest time. Events
// from banned pubkeys and events whose content contains a blocked keyword
// are rejected. A disabled moderator accepts everything.
type Moderator struct {
	enabled  bool
	keywords []string
	banned   map[string]struct{}
}

// NewModerator builds a Moderator from the configured keyword and pubkey
// lists. Empty strings in either list are ignored.
func NewModerator(enabled bool, keywords []string, bannedPubkeys []string) *Moderator {
	m := &Moderator{enabled: enabled, banned: make(map[string]struct{})}
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			m.keywords = append(m.keywords, kw)
		}
	}
	for _, pk := range bannedPubkeys {
		if pk = strings.TrimSpace(pk); pk != "" {
			m.banned[pk] = struct{}{}
		}
	}
	return m
}

// Allow reports whether the event passes the moderation policy.
func (m *Moderator) Allow(e *Event) bool {
	if m == nil || !m.enabled {
		return true
	}
	if _, ok := m.banned[e.Pubkey]; ok {
		return false
	}
	for _, kw := range m.keywords {
		if strings.Contains(e.Content, kw) {
			return false
		}
	}
	return true
}
