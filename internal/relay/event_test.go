package relay

import (
	"testing"
)

func TestEvent_ComputeID(t *testing.T) {
	e := &Event{
		Kind:      1,
		Pubkey:    "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
		CreatedAt: 1700000000,
		Content:   "hello",
		Tags:      [][]string{{"e", "abc"}},
	}

	id1, err := e.ComputeID()
	if err != nil {
		t.Fatalf("ComputeID: %v", err)
	}
	if len(id1) != 64 {
		t.Errorf("id length = %d, want 64", len(id1))
	}

	// Same input, same id.
	id2, err := e.ComputeID()
	if err != nil {
		t.Fatalf("ComputeID: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ComputeID not deterministic: %s != %s", id1, id2)
	}

	// Any field change moves the id.
	e.Content = "hello!"
	id3, _ := e.ComputeID()
	if id3 == id1 {
		t.Error("ComputeID did not change with content")
	}
}

func TestEvent_ComputeID_NilTags(t *testing.T) {
	withNil := &Event{Pubkey: "ab", CreatedAt: 1, Kind: 1, Content: "x", Tags: nil}
	withEmpty := &Event{Pubkey: "ab", CreatedAt: 1, Kind: 1, Content: "x", Tags: [][]string{}}

	id1, _ := withNil.ComputeID()
	id2, _ := withEmpty.ComputeID()
	if id1 != id2 {
		t.Errorf("nil and empty tags serialize differently: %s != %s", id1, id2)
	}
}

func TestEvent_ExpiresAt(t *testing.T) {
	tests := []struct {
		name string
		tags [][]string
		want int64
	}{
		{"no tag", nil, 0},
		{"valid", [][]string{{"expiration", "1700000000"}}, 1700000000},
		{"malformed", [][]string{{"expiration", "soon"}}, 0},
		{"negative", [][]string{{"expiration", "-5"}}, 0},
		{"missing value", [][]string{{"expiration"}}, 0},
		{"first wins", [][]string{{"expiration", "10"}, {"expiration", "20"}}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Event{Tags: tt.tags}
			if got := e.ExpiresAt(); got != tt.want {
				t.Errorf("ExpiresAt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEvent_KindClassification(t *testing.T) {
	tests := []struct {
		name      string
		kind      int
		tags      [][]string
		replace   bool
		paramRepl bool
		ephemeral bool
	}{
		{"profile", 0, nil, true, false, false},
		{"contacts", 3, nil, true, false, false},
		{"note", 1, nil, false, false, false},
		{"ephemeral low", 20000, nil, false, false, true},
		{"ephemeral high", 29999, nil, false, false, true},
		{"auth", 22242, nil, false, false, true},
		{"param with d", 30023, [][]string{{"d", "post-1"}}, false, true, false},
		{"param without d", 30023, nil, false, false, false},
		{"param range end", 39999, [][]string{{"d", "x"}}, false, true, false},
		{"above param range", 40000, [][]string{{"d", "x"}}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Event{Kind: tt.kind, Tags: tt.tags}
			if got := e.IsReplaceable(); got != tt.replace {
				t.Errorf("IsReplaceable() = %v, want %v", got, tt.replace)
			}
			if got := e.IsParamReplaceable(); got != tt.paramRepl {
				t.Errorf("IsParamReplaceable() = %v, want %v", got, tt.paramRepl)
			}
			if got := e.IsEphemeral(); got != tt.ephemeral {
				t.Errorf("IsEphemeral() = %v, want %v", got, tt.ephemeral)
			}
		})
	}
}

func TestEvent_TagHelpers(t *testing.T) {
	e := &Event{Tags: [][]string{
		{"e", "id1"},
		{"p", "pk1"},
		{"e", "id2", "relay-hint"},
		{"short"},
	}}

	if got := e.Tag("e"); got != "id1" {
		t.Errorf("Tag(e) = %q, want id1", got)
	}
	if got := e.Tag("missing"); got != "" {
		t.Errorf("Tag(missing) = %q, want empty", got)
	}
	vals := e.TagValues("e")
	if len(vals) != 2 || vals[0] != "id1" || vals[1] != "id2" {
		t.Errorf("TagValues(e) = %v", vals)
	}
}
