package page

import "sync"

// History receives the browser history changes a page makes. Opening an
// overlay pushes an entry; closing it and changing the search replace the
// current one.
type History interface {
	Push(url string)
	Replace(url string)
}

// HistoryOp is the kind of a history change.
type HistoryOp string

// History operations.
const (
	HistoryPush    HistoryOp = "push"
	HistoryReplace HistoryOp = "replace"
)

// HistoryEntry is one recorded history change.
type HistoryEntry struct {
	Op  HistoryOp `json:"op"`
	URL string    `json:"url"`
}

// Recorder is a History that keeps the changes until they are drained, e.g.
// into the next response sent to the browser.
type Recorder struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

// Push records a push.
func (r *Recorder) Push(url string) {
	r.record(HistoryPush, url)
}

// Replace records a replace.
func (r *Recorder) Replace(url string) {
	r.record(HistoryReplace, url)
}

// Entries returns the recorded changes without clearing them.
func (r *Recorder) Entries() []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HistoryEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Drain returns the recorded changes and clears them.
func (r *Recorder) Drain() []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.entries
	r.entries = nil
	return out
}

func (r *Recorder) record(op HistoryOp, url string) {
	r.mu.Lock()
	r.entries = append(r.entries, HistoryEntry{Op: op, URL: url})
	r.mu.Unlock()
}
