package goasq

import (
	"fmt"
	"testing"
	"time"
)

// TestChangeBufferCoalesces verifies repeated writes to one key keep only
// the last value.
func TestChangeBufferCoalesces(t *testing.T) {
	buffer := NewChangeBuffer()
	buffer.Add(AnswerMap{"k": "1"})
	buffer.Add(AnswerMap{"k": "2", "other": "x"})

	if buffer.Len() != 2 {
		t.Fatalf("Len = %d, want 2", buffer.Len())
	}
	taken := buffer.Take()
	if taken["k"] != "2" {
		t.Errorf("Last write did not win: %q", taken["k"])
	}
	if buffer.Len() != 0 {
		t.Error("Take did not drain the buffer")
	}
}

// TestFlushWritesAndClears verifies a flush merges pending changes into the
// store and empties the buffer.
func TestFlushWritesAndClears(t *testing.T) {
	q, renderer, _ := newTestQuestionnaire(t, "http://unused")
	q.setReadOnly(false)

	renderer.Edit(AnswerMap{"app_name": "Test"})
	q.FlushChanges()

	stored, ok := q.Store().Read("webapp")
	if !ok || stored["app_name"] != "Test" {
		t.Errorf("Flush did not persist the change: %v", stored)
	}
	if q.ChangeBuffer().Len() != 0 {
		t.Error("Flush did not clear the buffer")
	}
}

// TestFlushReadOnlyBlocksEntirely replays Scenario B: edits accumulate in a
// read-only session but flush never writes and the buffer keeps them.
func TestFlushReadOnlyBlocksEntirely(t *testing.T) {
	q, renderer, _ := newTestQuestionnaire(t, "http://unused")
	// The session starts read-only.

	renderer.Edit(AnswerMap{"app_name": "one"})
	renderer.Edit(AnswerMap{"app_description": "two"})
	if q.ChangeBuffer().Len() != 2 {
		t.Fatalf("Buffer should accumulate in read-only mode, has %d", q.ChangeBuffer().Len())
	}

	q.FlushChanges()
	if _, ok := q.Store().Read("webapp"); ok {
		t.Error("Read-only flush wrote to storage")
	}
	if q.ChangeBuffer().Len() != 2 {
		t.Error("Read-only flush drained the buffer")
	}
}

// TestEmptyFlushIsIdempotent verifies flushing an empty buffer twice leaves
// the store untouched.
func TestEmptyFlushIsIdempotent(t *testing.T) {
	q, _, _ := newTestQuestionnaire(t, "http://unused")
	q.setReadOnly(false)

	if err := q.Store().Write("webapp", AnswerMap{"a": "1"}); err != nil {
		t.Fatalf("Seed write failed: %v", err)
	}
	before, _ := q.Store().ReadRaw("webapp")

	q.FlushChanges()
	q.FlushChanges()

	after, _ := q.Store().ReadRaw("webapp")
	if before != after {
		t.Errorf("Empty flush changed the store: %q -> %q", before, after)
	}
}

// TestFlushKeepsChangesOnStorageFailure verifies a full medium leaves the
// buffer intact and surfaces the alert.
func TestFlushKeepsChangesOnStorageFailure(t *testing.T) {
	storage := NewMemoryStorage()
	renderer := newFakeRenderer()
	q := NewQuestionnaire("http://unused", renderer, storage)
	advisories := &advisoryLog{}
	q.OnAdvisory(advisories.record)
	if err := q.LoadTemplate("webapp.json", testTemplate, ""); err != nil {
		t.Fatalf("LoadTemplate failed: %v", err)
	}
	q.setReadOnly(false)

	storage.FailWrites = true
	renderer.Edit(AnswerMap{"app_name": "x"})
	q.FlushChanges()

	if q.ChangeBuffer().Len() != 1 {
		t.Error("Changes were dropped despite the storage failure")
	}
	advisories.mu.Lock()
	count := len(advisories.messages)
	advisories.mu.Unlock()
	if count == 0 {
		t.Error("Storage failure surfaced no alert")
	}
}

// TestConcurrentEditsSurviveFlush hammers the change buffer from the
// renderer's goroutine while flush cycles run, then verifies every edit is
// either persisted or still pending. An edit arriving between the flush
// snapshot and its acknowledgement must not be dropped.
func TestConcurrentEditsSurviveFlush(t *testing.T) {
	q, renderer, _ := newTestQuestionnaire(t, "http://unused")
	q.setReadOnly(false)

	const edits = 2000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < edits; i++ {
			renderer.Edit(AnswerMap{fmt.Sprintf("field_%d", i): "v"})
		}
	}()

	for flushing := true; flushing; {
		select {
		case <-done:
			flushing = false
		default:
		}
		q.FlushChanges()
	}
	q.FlushChanges()

	stored, _ := q.Store().Read("webapp")
	pending := q.ChangeBuffer().Peek()
	lost := 0
	for i := 0; i < edits; i++ {
		key := fmt.Sprintf("field_%d", i)
		if stored[key] == "" && pending[key] == "" {
			lost++
		}
	}
	if lost != 0 {
		t.Fatalf("%d edits were neither persisted nor left pending", lost)
	}
}

// TestAcknowledgeKeepsNewerValue verifies acknowledging a flushed snapshot
// leaves a key pending when it was edited again after the snapshot.
func TestAcknowledgeKeepsNewerValue(t *testing.T) {
	buffer := NewChangeBuffer()
	buffer.Add(AnswerMap{"k": "1", "stable": "x"})
	snapshot := buffer.Peek()

	buffer.Add(AnswerMap{"k": "2"})
	buffer.Acknowledge(snapshot)

	pending := buffer.Peek()
	if pending["k"] != "2" {
		t.Errorf("Newer value was acknowledged away: %q", pending["k"])
	}
	if _, ok := pending["stable"]; ok {
		t.Error("Flushed pair was not acknowledged")
	}
}

// TestAutosaveLoopFlushes verifies the periodic timer picks up pending
// edits and reschedules.
func TestAutosaveLoopFlushes(t *testing.T) {
	q, renderer, _ := newTestQuestionnaire(t, "http://unused")
	q.setReadOnly(false)
	q.SetAutosaveInterval(10 * time.Millisecond)

	q.StartAutosave()
	defer q.StopAutosave()

	renderer.Edit(AnswerMap{"app_name": "timed"})
	deadline := time.After(2 * time.Second)
	for {
		if stored, ok := q.Store().Read("webapp"); ok && stored["app_name"] == "timed" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Autosave never flushed the edit")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// A second edit proves the timer rescheduled after the first flush.
	renderer.Edit(AnswerMap{"app_description": "again"})
	deadline = time.After(2 * time.Second)
	for {
		if stored, _ := q.Store().Read("webapp"); stored["app_description"] == "again" {
			return
		}
		select {
		case <-deadline:
			t.Fatal("Autosave did not reschedule")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
