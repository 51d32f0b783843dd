package gitfs

import (
	"sync"
)

type handleState int

const (
	stateEmpty handleState = iota
	stateResolved
	stateReleased
)

func (s handleState) String() string {
	switch s {
	case stateEmpty:
		return "empty"
	case stateResolved:
		return "resolved"
	case stateReleased:
		return "released"
	}
	return "invalid"
}

// Handle is one open file or directory.  Its state only moves forward:
// empty, resolved, released.
type Handle struct {
	path  string
	state handleState
	entry Entry
}

// open resolves the handle's path.  On failure the handle stays empty.
func (h *Handle) open(lookup func(path string) (Entry, error)) error {
	if h.state != stateEmpty {
		return ErrBadHandle
	}
	e, err := lookup(h.path)
	if err != nil {
		return err
	}
	h.entry = e
	h.state = stateResolved
	return nil
}

func (h *Handle) get() (Entry, error) {
	if h.state != stateResolved {
		return nil, ErrBadHandle
	}
	return h.entry, nil
}

// release frees the entry.  Releasing an empty handle does nothing.
func (h *Handle) release() error {
	switch h.state {
	case stateEmpty:
		return nil
	case stateReleased:
		return ErrBadHandle
	}
	err := h.entry.Release()
	h.entry = nil
	h.state = stateReleased
	return err
}

// handleTable maps tokens given to the dispatch layer onto live handles.
// Token 0 is never issued.
type handleTable struct {
	mu    sync.Mutex
	last  uint64
	slots map[uint64]*Handle
}

func (t *handleTable) insert(h *Handle) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slots == nil {
		t.slots = make(map[uint64]*Handle)
	}
	t.last++
	t.slots[t.last] = h
	return t.last
}

func (t *handleTable) get(token uint64) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[token]
}

// remove empties a slot and returns what was in it.
func (t *handleTable) remove(token uint64) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.slots[token]
	delete(t.slots, token)
	return h
}

func (t *handleTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
