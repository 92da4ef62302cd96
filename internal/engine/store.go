package engine

import "surface/internal/types"

// snapshotStore holds the engine's view of the active project plus cached
// snapshots for inactive projects. It is not safe for concurrent use on its
// own; the engine's mutex is the single writer gate.
type snapshotStore struct {
	active      []*types.Session
	byID        map[string]*types.Session
	prevStates  map[string]types.SessionState
	mergeStatus map[string]types.MergeStatus
	projects    map[string][]*types.Session
}

func newSnapshotStore() *snapshotStore {
	return &snapshotStore{
		byID:        map[string]*types.Session{},
		prevStates:  map[string]types.SessionState{},
		mergeStatus: map[string]types.MergeStatus{},
		projects:    map[string][]*types.Session{},
	}
}

// commit installs a reconciled session list as the active view and refreshes
// the per-id lookups, lifecycle fingerprints and derived merge statuses.
// Statuses of removed sessions are purged; an explicitly forced status (set
// by a push event between passes) survives only through the session flags it
// was recorded on, which is why event handlers write flags, not just status.
func (s *snapshotStore) commit(sessions []*types.Session) {
	s.active = sessions
	s.byID = make(map[string]*types.Session, len(sessions))
	nextStates := make(map[string]types.SessionState, len(sessions))
	nextStatus := make(map[string]types.MergeStatus, len(sessions))
	for _, session := range sessions {
		s.byID[session.ID] = session
		nextStates[session.ID] = session.State
		if status := types.MergeStatusFor(session); status != types.MergeStatusNone {
			nextStatus[session.ID] = status
		}
	}
	s.prevStates = nextStates
	s.mergeStatus = nextStatus
}

func (s *snapshotStore) session(id string) *types.Session {
	return s.byID[id]
}

func (s *snapshotStore) has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// cacheProject stores a snapshot for a project that is not currently active.
func (s *snapshotStore) cacheProject(projectPath string, sessions []*types.Session) {
	if projectPath == "" {
		return
	}
	s.projects[projectPath] = sessions
}

func (s *snapshotStore) cachedProject(projectPath string) ([]*types.Session, bool) {
	sessions, ok := s.projects[projectPath]
	return sessions, ok
}

// setStatus forces a derived status for a session and mirrors it onto the
// session's flags so the next recompute reaches the same answer.
func (s *snapshotStore) setStatus(id string, status types.MergeStatus) {
	session := s.byID[id]
	if session == nil {
		return
	}
	switch status {
	case types.MergeStatusConflict:
		v := true
		session.MergeHasConflicts = &v
	case types.MergeStatusMerged:
		up := true
		noConflict := false
		session.MergeIsUpToDate = &up
		session.MergeHasConflicts = &noConflict
		session.DiffStats = &types.DiffStats{}
		session.HasUncommitted = false
	case types.MergeStatusNone:
		session.MergeHasConflicts = nil
		session.MergeIsUpToDate = nil
	}
	if status == types.MergeStatusNone {
		delete(s.mergeStatus, id)
		return
	}
	s.mergeStatus[id] = status
}

func (s *snapshotStore) status(id string) types.MergeStatus {
	return s.mergeStatus[id]
}
