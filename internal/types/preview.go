package types

// MergeMode selects how a session branch lands on its parent.
type MergeMode string

const (
	MergeModeSquash  MergeMode = "squash"
	MergeModeReapply MergeMode = "reapply"
)

// MergePreview is the backend's dry-run answer for merging a session into
// its parent branch.
type MergePreview struct {
	SessionID            string   `json:"session_id"`
	ParentBranch         string   `json:"parent_branch"`
	SquashCommands       []string `json:"squash_commands,omitempty"`
	ReapplyCommands      []string `json:"reapply_commands,omitempty"`
	DefaultCommitMessage string   `json:"default_commit_message,omitempty"`
	HasConflicts         bool     `json:"has_conflicts"`
	ConflictingPaths     []string `json:"conflicting_paths,omitempty"`
	IsUpToDate           bool     `json:"is_up_to_date"`
}

func (p *MergePreview) Clone() *MergePreview {
	if p == nil {
		return nil
	}
	next := *p
	if p.SquashCommands != nil {
		next.SquashCommands = append([]string{}, p.SquashCommands...)
	}
	if p.ReapplyCommands != nil {
		next.ReapplyCommands = append([]string{}, p.ReapplyCommands...)
	}
	if p.ConflictingPaths != nil {
		next.ConflictingPaths = append([]string{}, p.ConflictingPaths...)
	}
	return &next
}
