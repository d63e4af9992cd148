package goasq

import (
	"sort"

	"github.com/Morningstar/GoASQ/messages"
)

// AnswerMap maps template field ids (plus reserved metadata keys) to answer
// values. A missing key means "never answered", not "answered empty".
type AnswerMap map[string]string

// Clone returns a shallow copy of the mapping.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MergeAnswers shallow-merges incoming into current and returns the result
// as a new mapping. Server responses, imported files and cached storage all
// merge through this one path; each is treated as an equally authoritative
// snapshot layered over what is already there.
func MergeAnswers(current, incoming AnswerMap) AnswerMap {
	merged := current.Clone()
	for key, value := range incoming {
		merged[key] = value
	}
	return merged
}

// DiffResult reports the fields whose cached value differs from the last
// remote snapshot. Unmodified is distinct from an empty key list: the caller
// chooses between a modification banner and a no-op notice.
type DiffResult struct {
	Keys       []string
	Unmodified bool
}

// ComputeDiff compares every key of current except version markers against
// lastRemote. A mismatch, including a key present on only one side, is
// reported. Keys come back sorted so the jump-link list is stable.
func ComputeDiff(current, lastRemote AnswerMap) DiffResult {
	var keys []string
	for key, value := range current {
		if messages.IsVersionMarker(key) {
			continue
		}
		if remote, ok := lastRemote[key]; !ok || remote != value {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return DiffResult{Keys: keys, Unmodified: len(keys) == 0}
}

// StampVersion stamps answers that carry neither recognized version marker
// with the oldest one. This is a backward-compatibility default for imported
// files, not validation; malformed content still merges.
func StampVersion(answers AnswerMap) AnswerMap {
	if _, ok := answers[messages.VersionMarkerV01]; ok {
		return answers
	}
	if _, ok := answers[messages.VersionMarkerV02]; ok {
		return answers
	}
	stamped := answers.Clone()
	stamped[messages.VersionMarkerV01] = messages.VersionMarkerChecked
	return stamped
}
