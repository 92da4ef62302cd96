package types

import "time"

type SessionState string

const (
	SessionStateSpec     SessionState = "spec"
	SessionStateRunning  SessionState = "running"
	SessionStateReviewed SessionState = "reviewed"
)

// DiffStats summarizes the working diff of a session's worktree against its
// parent branch, as reported by the backend.
type DiffStats struct {
	FilesChanged int `json:"files_changed"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
}

func (d *DiffStats) IsEmpty() bool {
	return d == nil || (d.FilesChanged == 0 && d.Additions == 0 && d.Deletions == 0)
}

type TaskProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Session is one coding-agent work session bound to a git worktree. The
// backend owns the record; the engine only caches and reconciles it.
//
// The merge flags are pointers because not every snapshot source reports
// them: an absent flag means "unknown", not "false", and the engine carries
// the previous value forward rather than regressing to unknown.
type Session struct {
	ID           string       `json:"id"`
	Branch       string       `json:"branch"`
	WorktreePath string       `json:"worktree_path,omitempty"`
	ParentBranch string       `json:"parent_branch,omitempty"`
	State        SessionState `json:"state"`
	ReadyToMerge bool         `json:"ready_to_merge,omitempty"`

	MergeHasConflicts     *bool    `json:"merge_has_conflicts,omitempty"`
	MergeIsUpToDate       *bool    `json:"merge_is_up_to_date,omitempty"`
	MergeConflictingPaths []string `json:"merge_conflicting_paths,omitempty"`

	DiffStats      *DiffStats `json:"diff_stats,omitempty"`
	HasUncommitted bool       `json:"has_uncommitted,omitempty"`

	Attention   bool          `json:"attention,omitempty"`
	Cancelling  bool          `json:"cancelling,omitempty"`
	CurrentTask string        `json:"current_task,omitempty"`
	Progress    *TaskProgress `json:"progress,omitempty"`

	// AgentType is the hint the session was originally created with.
	AgentType string `json:"agent_type,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can hand sessions across goroutine
// boundaries without sharing the engine's internal record.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	next := *s
	if s.MergeHasConflicts != nil {
		v := *s.MergeHasConflicts
		next.MergeHasConflicts = &v
	}
	if s.MergeIsUpToDate != nil {
		v := *s.MergeIsUpToDate
		next.MergeIsUpToDate = &v
	}
	if s.MergeConflictingPaths != nil {
		next.MergeConflictingPaths = append([]string{}, s.MergeConflictingPaths...)
	}
	if s.DiffStats != nil {
		v := *s.DiffStats
		next.DiffStats = &v
	}
	if s.Progress != nil {
		v := *s.Progress
		next.Progress = &v
	}
	return &next
}

func CloneSessions(sessions []*Session) []*Session {
	if sessions == nil {
		return nil
	}
	out := make([]*Session, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.Clone())
	}
	return out
}

// MergeStatus is derived from a session's flags and diff stats on every
// reconciliation pass. It is never persisted on its own.
type MergeStatus string

const (
	MergeStatusNone     MergeStatus = ""
	MergeStatusConflict MergeStatus = "conflict"
	MergeStatusMerged   MergeStatus = "merged"
)

// MergeStatusFor computes the derived status: a reported conflict wins, an
// up-to-date branch with nothing left in the diff counts as merged.
func MergeStatusFor(session *Session) MergeStatus {
	if session == nil {
		return MergeStatusNone
	}
	if session.MergeHasConflicts != nil && *session.MergeHasConflicts {
		return MergeStatusConflict
	}
	if session.MergeIsUpToDate != nil && *session.MergeIsUpToDate &&
		session.DiffStats.IsEmpty() && !session.HasUncommitted {
		return MergeStatusMerged
	}
	return MergeStatusNone
}
