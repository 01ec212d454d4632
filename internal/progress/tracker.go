package progress

import (
	"context"
	"sync"
	"time"
)

// Operation statuses, in the order a study guide run moves through them.
const (
	StatusInitializing = "initializing"
	StatusUploading    = "uploading"
	StatusGenerating   = "generating"
	StatusComplete     = "complete"
	StatusError        = "error"
)

// maxMessages bounds the per-operation message ring.
const maxMessages = 50

// Message is one timestamped progress line for an operation.
type Message struct {
	Time time.Time `json:"timestamp"`
	Text string    `json:"text"`
}

// State is a point-in-time snapshot of one operation.
type State struct {
	Status   string    `json:"status"`
	Progress int       `json:"progress"`
	Messages []Message `json:"messages"`
	Updated  time.Time `json:"-"`
}

type entry struct {
	status   string
	progress int
	messages []Message
	updated  time.Time
}

// Tracker records progress for in-flight operations keyed by id.
// Safe for concurrent use.
type Tracker struct {
	mu  sync.Mutex
	ops map[string]*entry

	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		ops: make(map[string]*entry),
		now: time.Now,
	}
}

// Init registers a fresh operation in the initializing state.
func (t *Tracker) Init(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops[id] = &entry{
		status:  StatusInitializing,
		updated: t.now(),
	}
}

// Add records a progress message and updates the operation's status and
// percentage. Progress never moves backwards; pass a negative progress to
// keep the current value. Unknown ids are created on the fly so late
// updates are never lost.
func (t *Tracker) Add(id, text, status string, progress int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.ops[id]
	if !ok {
		e = &entry{}
		t.ops[id] = e
	}
	now := t.now()
	if text != "" {
		e.messages = append(e.messages, Message{Time: now, Text: text})
		if len(e.messages) > maxMessages {
			e.messages = e.messages[len(e.messages)-maxMessages:]
		}
	}
	if status != "" {
		e.status = status
	}
	if progress > e.progress {
		e.progress = progress
	}
	if e.progress > 100 {
		e.progress = 100
	}
	e.updated = now
}

// Get returns a snapshot of the operation, or ok=false if the id is
// unknown (never started, or already swept).
func (t *Tracker) Get(id string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.ops[id]
	if !ok {
		return State{}, false
	}
	msgs := make([]Message, len(e.messages))
	copy(msgs, e.messages)
	return State{
		Status:   e.status,
		Progress: e.progress,
		Messages: msgs,
		Updated:  e.updated,
	}, true
}

// Clear removes a single operation.
func (t *Tracker) Clear(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ops, id)
}

// Sweep drops operations whose last update is older than maxAge and
// returns how many were removed.
func (t *Tracker) Sweep(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-maxAge)
	n := 0
	for id, e := range t.ops {
		if e.updated.Before(cutoff) {
			delete(t.ops, id)
			n++
		}
	}
	return n
}

// Run sweeps stale operations every interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(maxAge)
		}
	}
}
