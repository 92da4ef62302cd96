package engine

import "sync"

// MutationKind identifies a destructive in-flight operation on a session.
type MutationKind string

const (
	MutationMerge  MutationKind = "merge"
	MutationRemove MutationKind = "remove"
)

// mutationTracker records which mutation kinds are in flight per session id.
// Different kinds may overlap on one session, but each kind is exclusive for
// that session, which is what prevents two concurrent merges of the same
// branch.
type mutationTracker struct {
	mu       sync.Mutex
	inFlight map[string]map[MutationKind]bool
}

func newMutationTracker() *mutationTracker {
	return &mutationTracker{inFlight: map[string]map[MutationKind]bool{}}
}

// Begin records the mutation, reporting false if the same kind is already in
// flight for the session.
func (t *mutationTracker) Begin(sessionID string, kind MutationKind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	kinds := t.inFlight[sessionID]
	if kinds != nil && kinds[kind] {
		return false
	}
	if kinds == nil {
		kinds = map[MutationKind]bool{}
		t.inFlight[sessionID] = kinds
	}
	kinds[kind] = true
	return true
}

// Force records the mutation unconditionally, for push events that report an
// operation the backend started on its own.
func (t *mutationTracker) Force(sessionID string, kind MutationKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kinds := t.inFlight[sessionID]
	if kinds == nil {
		kinds = map[MutationKind]bool{}
		t.inFlight[sessionID] = kinds
	}
	kinds[kind] = true
}

func (t *mutationTracker) End(sessionID string, kind MutationKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kinds := t.inFlight[sessionID]
	if kinds == nil {
		return
	}
	delete(kinds, kind)
	if len(kinds) == 0 {
		delete(t.inFlight, sessionID)
	}
}

func (t *mutationTracker) Has(sessionID string, kind MutationKind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	kinds := t.inFlight[sessionID]
	return kinds != nil && kinds[kind]
}

// Clear drops all in-flight records for a session, used when the session is
// removed from the store.
func (t *mutationTracker) Clear(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, sessionID)
}
