package device

import "sync"

// Registry is the authoritative in-memory list of known devices. Lookups are
// linear; a host carries tens of block devices, not thousands.
//
// Only the event monitor mutates a Registry. Everything else reads it.
type Registry struct {
	mu    sync.RWMutex
	disks []Record
}

// NewRegistry returns a registry seeded with records, in order.
func NewRegistry(records ...Record) *Registry {
	r := &Registry{}
	r.disks = append(r.disks, records...)
	return r
}

// Snapshot returns a copy of the records in insertion order.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, len(r.disks))
	copy(out, r.disks)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.disks)
}

// Lookup finds the record tracked for a device node.
func (r *Registry) Lookup(name string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.disks {
		if d.Name == name {
			return d, true
		}
	}
	return Record{}, false
}

// Insert appends rec without checking for an existing entry of the same
// name. Callers that may see a device twice must use Replace.
func (r *Registry) Insert(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disks = append(r.disks, rec)
}

// Replace drops every record with rec's name and appends rec, as one step.
func (r *Registry) Replace(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(rec)
	r.disks = append(r.disks, rec)
}

// Remove drops every record with rec's name and reports whether any was
// tracked.
func (r *Registry) Remove(rec Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(rec)
}

func (r *Registry) removeLocked(rec Record) bool {
	kept := r.disks[:0]
	removed := false
	for _, d := range r.disks {
		if d.SameDevice(rec) {
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	// zero the tail so dropped records are not retained by the backing array
	for i := len(kept); i < len(r.disks); i++ {
		r.disks[i] = Record{}
	}
	r.disks = kept
	return removed
}
