package types

import "time"

// EventKind enumerates the push-event stream. The dispatcher switches
// exhaustively over this enum, so adding a kind forces a routing decision.
type EventKind string

const (
	EventSessionsRefreshed    EventKind = "sessions_refreshed"
	EventSessionAdded         EventKind = "session_added"
	EventSessionRemoved       EventKind = "session_removed"
	EventSessionCancelling    EventKind = "session_cancelling"
	EventSessionActivity      EventKind = "session_activity"
	EventSessionGitStats      EventKind = "session_git_stats"
	EventGitOperationStarted  EventKind = "git_operation_started"
	EventGitOperationComplete EventKind = "git_operation_completed"
	EventGitOperationFailed   EventKind = "git_operation_failed"
)

// PushEvent is the tagged union delivered on the event stream. Exactly one
// payload field matching Kind is set.
type PushEvent struct {
	Kind EventKind `json:"kind"`

	Refreshed    *SessionsRefreshedEvent `json:"refreshed,omitempty"`
	Added        *SessionAddedEvent      `json:"added,omitempty"`
	Removed      *SessionRemovedEvent    `json:"removed,omitempty"`
	Cancelling   *SessionCancellingEvent `json:"cancelling,omitempty"`
	Activity     *SessionActivityEvent   `json:"activity,omitempty"`
	GitStats     *SessionGitStatsEvent   `json:"git_stats,omitempty"`
	GitOperation *GitOperationEvent      `json:"git_operation,omitempty"`
}

type SessionsRefreshedEvent struct {
	ProjectPath string     `json:"project_path"`
	Sessions    []*Session `json:"sessions"`
}

type SessionAddedEvent struct {
	ID           string    `json:"id"`
	Branch       string    `json:"branch"`
	WorktreePath string    `json:"worktree_path,omitempty"`
	ParentBranch string    `json:"parent_branch,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type SessionRemovedEvent struct {
	ID string `json:"id"`
}

type SessionCancellingEvent struct {
	ID string `json:"id"`
}

type SessionActivityEvent struct {
	ID             string        `json:"id"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	CurrentTask    string        `json:"current_task,omitempty"`
	Progress       *TaskProgress `json:"progress,omitempty"`
	Blocked        *bool         `json:"blocked,omitempty"`
}

type SessionGitStatsEvent struct {
	ID                    string   `json:"id"`
	FilesChanged          int      `json:"files_changed"`
	Additions             int      `json:"additions"`
	Deletions             int      `json:"deletions"`
	HasUncommitted        bool     `json:"has_uncommitted"`
	HasConflicts          *bool    `json:"has_conflicts,omitempty"`
	IsUpToDate            *bool    `json:"is_up_to_date,omitempty"`
	MergeConflictingPaths []string `json:"merge_conflicting_paths,omitempty"`
}

// GitOperationStatus reports the outcome of a completed or failed merge
// operation.
type GitOperationStatus string

const (
	GitOperationStatusMerged   GitOperationStatus = "merged"
	GitOperationStatusUpToDate GitOperationStatus = "up_to_date"
	GitOperationStatusConflict GitOperationStatus = "conflict"
)

// GitOperationEvent is shared by the started/completed/failed kinds; Status,
// Error and Commit are populated only where they apply.
type GitOperationEvent struct {
	ID           string             `json:"id"`
	Operation    string             `json:"operation"`
	Status       GitOperationStatus `json:"status,omitempty"`
	Error        string             `json:"error,omitempty"`
	Commit       string             `json:"commit,omitempty"`
	ParentBranch string             `json:"parent_branch,omitempty"`
}
