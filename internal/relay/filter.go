package relay

import "strings"

// Filter is a declarative predicate over events. Absent fields impose no
// constraint; present fields must all pass (AND across fields, OR across the
// values of one field).
//
// Values in IDs, Authors and the tag sets follow the prefix rule: a 64-char
// value must match exactly, anything shorter matches as a prefix.
type Filter struct {
	IDs     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	Since   *int64   `json:"since,omitempty"`
	Until   *int64   `json:"until,omitempty"`
	Limit   int      `json:"limit,omitempty"`
	ETags   []string `json:"#e,omitempty"`
	PTags   []string `json:"#p,omitempty"`
	DTags   []string `json:"#d,omitempty"`
}

// Matches reports whether the event satisfies the filter. The store's query
// translation must agree with this predicate exactly; both sides implement
// the same contract so a client moving from a historical query to a live
// subscription sees no semantic discontinuity.
func (f *Filter) Matches(e *Event) bool {
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if !matchIDOrPrefix(e.ID, f.IDs) {
		return false
	}
	if !matchIDOrPrefix(e.Pubkey, f.Authors) {
		return false
	}
	if f.Since != nil && e.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && e.CreatedAt > *f.Until {
		return false
	}
	if !matchTag(e, "e", f.ETags) {
		return false
	}
	if !matchTag(e, "p", f.PTags) {
		return false
	}
	if !matchTag(e, "d", f.DTags) {
		return false
	}
	return true
}

// matchIDOrPrefix implements the exact-or-prefix rule for id and pubkey
// fields. An empty value set passes.
func matchIDOrPrefix(field string, values []string) bool {
	if len(values) == 0 {
		return true
	}
	for _, v := range values {
		if len(v) == 64 {
			if field == v {
				return true
			}
		} else if strings.HasPrefix(field, v) {
			return true
		}
	}
	return false
}

// matchTag requires at least one tag of the given name whose value matches
// some filter value under the exact-or-prefix rule.
func matchTag(e *Event, name string, values []string) bool {
	if len(values) == 0 {
		return true
	}
	for _, v := range values {
		exact := len(v) == 64
		for _, t := range e.Tags {
			if len(t) < 2 || t[0] != name {
				continue
			}
			if exact {
				if t[1] == v {
					return true
				}
			} else if strings.HasPrefix(t[1], v) {
				return true
			}
		}
	}
	return false
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
