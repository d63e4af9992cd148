package goasq

import (
	"testing"

	"github.com/Morningstar/GoASQ/messages"
)

// TestMergeIdentity verifies that merging with an empty incoming mapping
// leaves the current mapping unchanged.
func TestMergeIdentity(t *testing.T) {
	current := AnswerMap{"app_name": "Test", "app_team_email": "team@example.com"}
	merged := MergeAnswers(current, AnswerMap{})

	if len(merged) != len(current) {
		t.Fatalf("Expected %d keys after identity merge, got %d", len(current), len(merged))
	}
	for key, value := range current {
		if merged[key] != value {
			t.Errorf("Key %s changed from %q to %q", key, value, merged[key])
		}
	}
}

// TestMergeOverwrites verifies shallow overwrite semantics: incoming wins,
// untouched keys survive.
func TestMergeOverwrites(t *testing.T) {
	current := AnswerMap{"a": "1", "b": "2"}
	incoming := AnswerMap{"b": "changed", "c": "3"}
	merged := MergeAnswers(current, incoming)

	if merged["a"] != "1" {
		t.Errorf("Untouched key was lost: %q", merged["a"])
	}
	if merged["b"] != "changed" {
		t.Errorf("Incoming value did not win: %q", merged["b"])
	}
	if merged["c"] != "3" {
		t.Errorf("New key was not added: %q", merged["c"])
	}
	// Merge returns a new mapping; the inputs stay intact.
	if current["b"] != "2" {
		t.Errorf("Merge mutated its input: %q", current["b"])
	}
}

// TestComputeDiffReportsMismatches verifies the diff law: a key of current
// differing from lastRemote, including one absent on either side, is
// reported; matching keys are not.
func TestComputeDiffReportsMismatches(t *testing.T) {
	current := AnswerMap{
		"same":       "value",
		"changed":    "new",
		"local_only": "here",
	}
	lastRemote := AnswerMap{
		"same":        "value",
		"changed":     "old",
		"remote_only": "there",
	}

	diff := ComputeDiff(current, lastRemote)
	if diff.Unmodified {
		t.Fatal("Expected modifications to be reported")
	}

	want := map[string]bool{"changed": true, "local_only": true}
	if len(diff.Keys) != len(want) {
		t.Fatalf("Expected %d differing keys, got %v", len(want), diff.Keys)
	}
	for _, key := range diff.Keys {
		if !want[key] {
			t.Errorf("Unexpected key in diff: %s", key)
		}
	}
}

// TestComputeDiffSkipsVersionMarkers verifies version-marker keys never
// show up in a diff.
func TestComputeDiffSkipsVersionMarkers(t *testing.T) {
	current := AnswerMap{
		messages.VersionMarkerV01: messages.VersionMarkerChecked,
		"q_version_0_2":           messages.VersionMarkerChecked,
		"field":                   "x",
	}
	diff := ComputeDiff(current, AnswerMap{"field": "x"})
	if !diff.Unmodified {
		t.Errorf("Version markers leaked into the diff: %v", diff.Keys)
	}
}

// TestComputeDiffUnmodified verifies the explicit unmodified condition is
// distinct from an empty key list.
func TestComputeDiffUnmodified(t *testing.T) {
	answers := AnswerMap{"field": "x"}
	diff := ComputeDiff(answers, answers.Clone())
	if !diff.Unmodified {
		t.Error("Expected the unmodified condition")
	}
	if len(diff.Keys) != 0 {
		t.Errorf("Expected no keys, got %v", diff.Keys)
	}
}

// TestComputeDiffSortsKeys verifies the jump-link ordering is stable.
func TestComputeDiffSortsKeys(t *testing.T) {
	current := AnswerMap{"zeta": "1", "alpha": "2", "mid": "3"}
	diff := ComputeDiff(current, AnswerMap{})
	want := []string{"alpha", "mid", "zeta"}
	for i, key := range diff.Keys {
		if key != want[i] {
			t.Fatalf("Keys not sorted: got %v", diff.Keys)
		}
	}
}

// TestStampVersion verifies imported answers lacking both recognized
// version markers get the oldest one, and stamped or newer files are left
// alone.
func TestStampVersion(t *testing.T) {
	stamped := StampVersion(AnswerMap{"field": "x"})
	if stamped[messages.VersionMarkerV01] != messages.VersionMarkerChecked {
		t.Errorf("Expected oldest version marker, got %q", stamped[messages.VersionMarkerV01])
	}

	newer := StampVersion(AnswerMap{messages.VersionMarkerV02: messages.VersionMarkerChecked})
	if _, ok := newer[messages.VersionMarkerV01]; ok {
		t.Error("A newer-version file must not be restamped")
	}

	already := AnswerMap{messages.VersionMarkerV01: messages.VersionMarkerChecked, "f": "1"}
	if len(StampVersion(already)) != len(already) {
		t.Error("An already-stamped file must pass through unchanged")
	}
}
