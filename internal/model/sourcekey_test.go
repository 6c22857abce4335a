package model

import (
	"strings"
	"testing"
	"time"
)

func TestSourceKey_Deterministic(t *testing.T) {
	a := SourceKey("1880 Census, Ohio", "https://example.org/ark:/61903/1:1:M6XX", "John Smith in household")
	b := SourceKey("1880 Census, Ohio", "https://example.org/ark:/61903/1:1:M6XX", "John Smith in household")
	if a != b {
		t.Fatalf("expected identical keys, got %s and %s", a, b)
	}
	if len(a) != 2*sourceKeyBytes {
		t.Errorf("expected %d hex chars, got %d", 2*sourceKeyBytes, len(a))
	}
	if strings.ToLower(a) != a {
		t.Errorf("expected lowercase hex, got %s", a)
	}
}

func TestSourceKey_EachFieldMatters(t *testing.T) {
	base := SourceKey("c", "u", "t")
	variants := map[string]string{
		"citation": SourceKey("c2", "u", "t"),
		"url":      SourceKey("c", "u2", "t"),
		"title":    SourceKey("c", "u", "t2"),
	}
	for name, key := range variants {
		if key == base {
			t.Errorf("changing %s did not change the key", name)
		}
	}
}

func TestSourceKey_MissingFieldsAreEmpty(t *testing.T) {
	key := SourceKey("", "", "Only a title")
	if key == "" {
		t.Fatal("expected a key for missing citation and url")
	}
	if key != SourceKey("", "", "Only a title") {
		t.Error("expected stable key with empty fields")
	}
	// Field separators keep shifted content distinct.
	if SourceKey("a", "", "b") == SourceKey("", "a", "b") {
		t.Error("expected separator to distinguish field positions")
	}
}

func TestRunIDFromTime(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 34, 56, 789_000_000, time.UTC)
	got := RunIDFromTime(ts)
	want := "2024-05-01T12-34-56-789Z"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	local := ts.In(time.FixedZone("EST", -5*3600))
	if RunIDFromTime(local) != want {
		t.Errorf("expected run id to be zone independent, got %s", RunIDFromTime(local))
	}
}

func TestEvidencePack_Validate(t *testing.T) {
	pack := &EvidencePack{
		SchemaVersion: SchemaVersion,
		RunID:         "2024-05-01T12-34-56-789Z",
		Sources: []Source{
			{ID: "S1", OrderIndex: 0, Title: "A", SourceKey: SourceKey("", "", "A")},
			{ID: "S2", OrderIndex: 1, Title: "B", SourceKey: SourceKey("", "", "B")},
		},
	}
	if err := pack.Validate(); err != nil {
		t.Fatalf("expected valid pack, got %v", err)
	}

	broken := pack.Clone()
	broken.Sources[1].OrderIndex = 5
	if err := broken.Validate(); err == nil {
		t.Error("expected orderIndex violation")
	}

	tampered := pack.Clone()
	tampered.Sources[0].Title = "changed"
	if err := tampered.Validate(); err == nil {
		t.Error("expected sourceKey mismatch")
	}

	dup := pack.Clone()
	dup.Sources[1].ID = "S1"
	if err := dup.Validate(); err == nil {
		t.Error("expected duplicate id error")
	}
}

func TestEvidencePack_CloneIsDeep(t *testing.T) {
	pack := &EvidencePack{
		Sources: []Source{{ID: "S1", Tags: []string{"x"}, Indexed: Indexed{Fields: []IndexedField{{Label: "Name", Value: "A"}}}}},
	}
	cp := pack.Clone()
	cp.Sources[0].Tags[0] = "y"
	cp.Sources[0].Indexed.Fields[0].Value = "B"
	if pack.Sources[0].Tags[0] != "x" || pack.Sources[0].Indexed.Fields[0].Value != "A" {
		t.Error("expected clone not to share slices with the original")
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to StageStatus
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusComplete, false},
		{StatusProcessing, StatusComplete, true},
		{StatusProcessing, StatusError, true},
		{StatusError, StatusProcessing, true},
		{StatusError, StatusComplete, false},
		{StatusComplete, StatusProcessing, true},
		{StatusComplete, StatusPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}
