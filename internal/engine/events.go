package engine

import (
	"context"

	"surface/internal/types"
)

// Incremental push events are expressed as edits to the current active list
// and folded through the same reconciliation pass as snapshots, so dedup,
// carry-forward, reinjection and removal protection apply uniformly no
// matter which source fed the engine.

func (e *Engine) handleSessionAdded(ctx context.Context, ev *types.SessionAddedEvent) {
	if ev.ID == "" {
		return
	}
	session := &types.Session{
		ID:           ev.ID,
		Branch:       ev.Branch,
		WorktreePath: ev.WorktreePath,
		ParentBranch: ev.ParentBranch,
		State:        types.SessionStateRunning,
		CreatedAt:    ev.CreatedAt,
		UpdatedAt:    ev.UpdatedAt,
	}
	e.passMu.Lock()
	defer e.passMu.Unlock()
	e.mu.Lock()
	projectPath := e.activeProject
	next := upsertSession(e.store.active, session)
	e.mu.Unlock()
	e.applySnapshot(ctx, next, projectPath, ReasonPushEvent)
}

func (e *Engine) handleSessionRemoved(ctx context.Context, id string) {
	if id == "" {
		return
	}
	e.passMu.Lock()
	defer e.passMu.Unlock()
	e.mu.Lock()
	projectPath := e.activeProject
	// The removal must stick even if an optimistic placeholder is still
	// live: the backend explicitly said the session is gone.
	delete(e.expected, id)
	next := make([]*types.Session, 0, len(e.store.active))
	for _, session := range e.store.active {
		if session.ID != id {
			next = append(next, session)
		}
	}
	e.mu.Unlock()
	e.applySnapshot(ctx, next, projectPath, ReasonPushEvent)
}

func (e *Engine) handleSessionCancelling(ctx context.Context, id string) {
	e.patchSession(ctx, id, func(session *types.Session) {
		session.Cancelling = true
	})
}

func (e *Engine) handleSessionActivity(ctx context.Context, ev *types.SessionActivityEvent) {
	e.patchSession(ctx, ev.ID, func(session *types.Session) {
		if !ev.LastActivityAt.IsZero() {
			session.UpdatedAt = ev.LastActivityAt
		}
		if ev.CurrentTask != "" {
			session.CurrentTask = ev.CurrentTask
		}
		if ev.Progress != nil {
			progress := *ev.Progress
			session.Progress = &progress
		}
		if ev.Blocked != nil {
			session.Attention = *ev.Blocked
		}
	})
}

func (e *Engine) handleSessionGitStats(ctx context.Context, ev *types.SessionGitStatsEvent) {
	e.patchSession(ctx, ev.ID, func(session *types.Session) {
		session.DiffStats = &types.DiffStats{
			FilesChanged: ev.FilesChanged,
			Additions:    ev.Additions,
			Deletions:    ev.Deletions,
		}
		session.HasUncommitted = ev.HasUncommitted
		if ev.HasConflicts != nil {
			v := *ev.HasConflicts
			session.MergeHasConflicts = &v
		}
		if ev.IsUpToDate != nil {
			v := *ev.IsUpToDate
			session.MergeIsUpToDate = &v
		}
		if ev.MergeConflictingPaths != nil {
			session.MergeConflictingPaths = append([]string{}, ev.MergeConflictingPaths...)
		}
	})
}

// patchSession applies an edit to one session of the active list and runs
// the result through a full pass. Events for untracked ids are dropped; the
// next snapshot is the authority on what exists.
func (e *Engine) patchSession(ctx context.Context, id string, edit func(*types.Session)) {
	if id == "" {
		return
	}
	e.passMu.Lock()
	defer e.passMu.Unlock()
	e.mu.Lock()
	projectPath := e.activeProject
	if !e.store.has(id) {
		e.mu.Unlock()
		return
	}
	next := make([]*types.Session, 0, len(e.store.active))
	for _, session := range e.store.active {
		if session.ID == id {
			patched := session.Clone()
			edit(patched)
			next = append(next, patched)
			continue
		}
		next = append(next, session)
	}
	e.mu.Unlock()
	e.applySnapshot(ctx, next, projectPath, ReasonPushEvent)
}

func upsertSession(list []*types.Session, session *types.Session) []*types.Session {
	next := make([]*types.Session, 0, len(list)+1)
	replaced := false
	for _, existing := range list {
		if existing.ID == session.ID {
			next = append(next, session)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, session)
	}
	return next
}
