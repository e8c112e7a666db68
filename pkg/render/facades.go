package render

import (
	"slices"
	"sync"
)

// Facade is a selection made in one view that narrows the queries of the
// others.
type Facade struct {
	ID      string `json:"id"`
	ViewID  int64  `json:"viewID"`
	TrackID int64  `json:"trackID,omitempty"`
}

// Facades is the ordered set of active view facades.
type Facades struct {
	mu    sync.Mutex
	items []Facade
}

// Add appends f.
func (f *Facades) Add(facade Facade) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, facade)
}

// RemoveByID drops the facade with the given ID and reports whether one was
// removed.
func (f *Facades) RemoveByID(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.IndexFunc(f.items, func(it Facade) bool { return it.ID == id })
	if i < 0 {
		return false
	}
	f.items = slices.Delete(f.items, i, i+1)
	return true
}

// Reset drops every facade.
func (f *Facades) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
}

// ViewID returns the view owning the first facade.
func (f *Facades) ViewID() (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == 0 {
		return 0, false
	}
	return f.items[0].ViewID, true
}

// Has reports whether any facade is active.
func (f *Facades) Has() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items) > 0
}

// All returns a copy of the active facades.
func (f *Facades) All() []Facade {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.items)
}
