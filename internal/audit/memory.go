package audit

import "sync"

// MemoryTrail is an in-memory Trail used in tests and dry runs.
type MemoryTrail struct {
	mutex   sync.Mutex
	entries []Entry
	index   map[string]struct{}
}

// NewMemoryTrail creates an empty in-memory trail.
func NewMemoryTrail() *MemoryTrail {
	return &MemoryTrail{index: make(map[string]struct{})}
}

// Append records the entry.
func (t *MemoryTrail) Append(entry Entry) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.entries = append(t.entries, entry)
	t.index[entry.Key()] = struct{}{}
	return nil
}

// Seen reports whether the pair has already been logged.
func (t *MemoryTrail) Seen(customerID, correlationID string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	_, ok := t.index[Key(customerID, correlationID)]
	return ok
}

// Close is a no-op.
func (t *MemoryTrail) Close() error { return nil }

// Entries returns a copy of all appended entries.
func (t *MemoryTrail) Entries() []Entry {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
