package state

// journalEntry records the pre-image of a single overwritten key so an
// aborted call can be unwound exactly, including keys that did not exist
// before the call.
type journalEntry struct {
	key     []byte
	existed bool
	prev    []byte
}

// Snapshot opens a revert point. Every initialize/tap call runs inside one
// so the all-or-nothing transaction contract holds without help from the
// backing store. Events are not journalled: they are only emitted at
// terminal points of a call, so a reverted call never has a success event
// to unwind, and rejection events deliberately outlive the abort.
func (m *Manager) Snapshot() int {
	m.revisions = append(m.revisions, len(m.journal))
	return len(m.revisions) - 1
}

// RevertToSnapshot undoes every write recorded after the given revert point.
// Entries are unwound newest-first so overlapping writes restore correctly.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id >= len(m.revisions) {
		return
	}
	keep := m.revisions[id]
	for i := len(m.journal) - 1; i >= keep; i-- {
		entry := m.journal[i]
		if entry.existed {
			// The undo targets keys this call just wrote, so the store
			// already accepted them once.
			_ = m.db.Put(entry.key, entry.prev)
		} else {
			_ = m.db.Delete(entry.key)
		}
	}
	m.journal = m.journal[:keep]
	m.revisions = m.revisions[:id]
}

// DiscardSnapshots commits the current call: revert points and their
// recorded pre-images are dropped, leaving all writes in place.
func (m *Manager) DiscardSnapshots() {
	m.revisions = m.revisions[:0]
	m.journal = m.journal[:0]
}
