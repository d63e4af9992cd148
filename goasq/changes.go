package goasq

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultAutosaveInterval is how often pending edits are flushed to the
// local answer store.
const DefaultAutosaveInterval = 3 * time.Second

// ChangeBuffer accumulates field edits between flush cycles. Repeated writes
// to the same key coalesce, last write wins.
type ChangeBuffer struct {
	mu      sync.Mutex
	pending AnswerMap
}

// NewChangeBuffer creates an empty buffer.
func NewChangeBuffer() *ChangeBuffer {
	return &ChangeBuffer{pending: AnswerMap{}}
}

// Add records a batch of changed values.
func (b *ChangeBuffer) Add(changes AnswerMap) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, value := range changes {
		b.pending[key] = value
	}
}

// Len returns the number of pending keys.
func (b *ChangeBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Take drains the buffer and returns what was pending.
func (b *ChangeBuffer) Take() AnswerMap {
	b.mu.Lock()
	defer b.mu.Unlock()
	taken := b.pending
	b.pending = AnswerMap{}
	return taken
}

// Peek returns a copy of the pending changes without draining them.
func (b *ChangeBuffer) Peek() AnswerMap {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.Clone()
}

// Reset discards all pending changes.
func (b *ChangeBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = AnswerMap{}
}

// Acknowledge removes the given key/value pairs from the pending set. A key
// whose value changed again after the snapshot was taken stays pending, so
// edits arriving mid-flush are never dropped.
func (b *ChangeBuffer) Acknowledge(flushed AnswerMap) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, value := range flushed {
		if b.pending[key] == value {
			delete(b.pending, key)
		}
	}
}

// StartAutosave begins the periodic flush loop. The timer is rescheduled
// unconditionally after every flush attempt; this is the sole scheduling
// loop in the client. Calling it twice is a no-op.
func (q *Questionnaire) StartAutosave() {
	q.mu.Lock()
	if q.autosaveStop != nil {
		q.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	q.autosaveStop = stop
	interval := q.autosaveInterval
	q.mu.Unlock()

	go func() {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for {
			select {
			case <-timer.C:
				q.FlushChanges()
				timer.Reset(interval)
			case <-stop:
				return
			}
		}
	}()
}

// StopAutosave halts the flush loop. Pending changes stay buffered.
func (q *Questionnaire) StopAutosave() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.autosaveStop != nil {
		close(q.autosaveStop)
		q.autosaveStop = nil
	}
}

// FlushChanges merges the pending change set into the local answer store
// under the current local identity and refreshes the export artifact. A
// read-only session blocks the flush entirely: nothing is written and the
// buffer keeps its contents. An empty buffer makes the flush a no-op. Only
// the key/value pairs actually written are acknowledged out of the buffer;
// edits the renderer emits while the write is in flight stay pending for
// the next cycle.
func (q *Questionnaire) FlushChanges() {
	q.mu.Lock()
	if q.readOnly || q.buffer.Len() == 0 {
		q.mu.Unlock()
		return
	}
	changes := q.buffer.Peek()
	localID := q.localID
	err := q.store.Write(localID, changes)
	if err == nil {
		q.buffer.Acknowledge(changes)
		q.refreshExportLocked()
	}
	q.mu.Unlock()

	if err != nil {
		// Storage failure is unrecoverable; keep the changes buffered and
		// surface the alert.
		log.Errorf("Failed to flush changes: %v", err)
		q.notify(err.Error())
		return
	}
	log.Debugf("Flushed %d changed answers for %s", len(changes), localID)
}
