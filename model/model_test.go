package model

import (
	"encoding/json"
	"testing"
)

func TestSelectorCheckOneVariant(t *testing.T) {
	sel := TargetSelector{Kind: SelectorHeading, Heading: &HeadingSelector{Text: "Usage"}}
	if err := sel.Check(); err != nil {
		t.Errorf("valid selector rejected: %v", err)
	}

	sel.Anchor = &AnchorSelector{Value: "usage"}
	if err := sel.Check(); err == nil {
		t.Error("selector with two variants accepted")
	}

	empty := TargetSelector{Kind: SelectorBlock}
	if err := empty.Check(); err == nil {
		t.Error("selector with no variant accepted")
	}
}

func TestSelectorUnmarshalEnforcesInvariant(t *testing.T) {
	var sel TargetSelector
	bad := `{"kind":"heading","anchor":{"value":"x"}}`
	if err := json.Unmarshal([]byte(bad), &sel); err == nil {
		t.Error("kind/payload mismatch accepted at construction")
	}

	good := `{"kind":"block","block":{"block_id":"abcdefabcdef"}}`
	if err := json.Unmarshal([]byte(good), &sel); err != nil {
		t.Errorf("valid selector rejected: %v", err)
	}
	if sel.Block == nil || sel.Block.ID != "abcdefabcdef" {
		t.Errorf("selector payload lost: %+v", sel)
	}
}

func TestComputeBlockIDIdempotent(t *testing.T) {
	a := ComputeBlockID("## Usage", "0/2")
	b := ComputeBlockID("## Usage", "0/2")
	if a != b {
		t.Errorf("same content and position hash differently: %s vs %s", a, b)
	}
	if len(a) != BlockIDLen {
		t.Errorf("id length = %d, want %d", len(a), BlockIDLen)
	}
	if ComputeBlockID("## Usage", "0/3") == a {
		t.Error("different positions must hash differently")
	}
}

func TestValidBlockID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"abcdef012345", true},
		{"ABCDEF012345", false}, // uppercase
		{"abcdef01234", false},  // short
		{"abcdef0123456", false},
		{"abcdef01234g", false},
	}
	for _, c := range cases {
		if got := ValidBlockID(c.id); got != c.want {
			t.Errorf("ValidBlockID(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestAuditEventHashIgnoresOwnHash(t *testing.T) {
	e := AuditEvent{EventID: "e1", Type: EventIntentReceived, IntentID: "i1", Status: StatusOK}
	h1 := e.ComputeHash()
	e.Hash = h1
	if e.ComputeHash() != h1 {
		t.Error("hash must be computed with the Hash field zeroed")
	}
	e.IntentID = "i2"
	if e.ComputeHash() == h1 {
		t.Error("content change did not change the hash")
	}
}

func TestEditable(t *testing.T) {
	for state, want := range map[EditabilityState]bool{
		EditabilityDraft:     true,
		EditabilityEditing:   true,
		EditabilityPublished: false,
		EditabilityArchived:  false,
	} {
		doc := DocumentContext{Editability: state}
		if doc.Editable() != want {
			t.Errorf("Editable() for %s = %v, want %v", state, !want, want)
		}
	}
}
