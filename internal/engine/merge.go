package engine

import (
	"context"

	"surface/internal/logging"
	"surface/internal/types"
)

type MergeDialogStatus string

const (
	MergeDialogIdle    MergeDialogStatus = "idle"
	MergeDialogLoading MergeDialogStatus = "loading"
	MergeDialogReady   MergeDialogStatus = "ready"
	MergeDialogRunning MergeDialogStatus = "running"
)

// MergeDialogState is the single merge dialog the UI renders. The engine
// owns its transitions; the UI only reads snapshots of it.
type MergeDialogState struct {
	Open          bool
	Status        MergeDialogStatus
	SessionID     string
	Preview       *types.MergePreview
	CommitMessage string
	Err           string
}

func (s MergeDialogState) openFor(id string) bool {
	return s.Open && s.SessionID == id
}

type ShortcutOutcome string

const (
	ShortcutBlocked    ShortcutOutcome = "blocked"
	ShortcutNeedsModal ShortcutOutcome = "needs_modal"
	ShortcutError      ShortcutOutcome = "error"
)

type ShortcutReason string

const (
	ShortcutReasonNoSession            ShortcutReason = "no_session"
	ShortcutReasonSessionIsSpec        ShortcutReason = "session_is_spec"
	ShortcutReasonMergeInFlight        ShortcutReason = "merge_in_flight"
	ShortcutReasonAlreadyMerged        ShortcutReason = "already_merged"
	ShortcutReasonConflict             ShortcutReason = "conflict"
	ShortcutReasonMissingCommitMessage ShortcutReason = "missing_commit_message"
	ShortcutReasonConfirmRequired      ShortcutReason = "confirm_required"
	ShortcutReasonPreviewFailed        ShortcutReason = "preview_failed"
)

// ShortcutResult is what a keyboard-triggered merge attempt resolves to. The
// shortcut never merges silently: every viable path ends in a dialog the
// user must confirm.
type ShortcutResult struct {
	Outcome ShortcutOutcome
	Reason  ShortcutReason
	Err     string
}

// OpenMergeDialog requests a merge preview and moves the dialog
// idle/loading -> ready. A failed preview leaves the dialog open with the
// error attached and no preview.
func (e *Engine) OpenMergeDialog(ctx context.Context, id string) error {
	e.mu.Lock()
	e.dialog = MergeDialogState{Open: true, Status: MergeDialogLoading, SessionID: id}
	e.mu.Unlock()
	e.notifySubscribers()

	preview, err := e.backend.GetMergePreview(ctx, id)

	e.mu.Lock()
	if !e.dialog.openFor(id) || e.dialog.Status != MergeDialogLoading {
		// The dialog moved on while the preview was in flight; the result
		// has no home.
		e.mu.Unlock()
		return err
	}
	if err != nil {
		e.dialog.Status = MergeDialogIdle
		e.dialog.Err = err.Error()
		e.mu.Unlock()
		e.notifySubscribers()
		return err
	}
	e.previews[id] = preview.Clone()
	e.dialog.Status = MergeDialogReady
	e.dialog.Preview = preview.Clone()
	e.dialog.CommitMessage = preview.DefaultCommitMessage
	if preview.HasConflicts {
		e.store.setStatus(id, types.MergeStatusConflict)
	}
	e.mu.Unlock()
	e.notifySubscribers()
	return nil
}

// CloseMergeDialog cancels the dialog explicitly.
func (e *Engine) CloseMergeDialog() {
	e.mu.Lock()
	e.dialog = MergeDialogState{}
	e.mu.Unlock()
	e.notifySubscribers()
}

// ConfirmMerge issues the merge RPC for a ready dialog. A duplicate call
// while a merge is in flight for the session is a no-op; the in-flight flag
// is cleared on every path out.
func (e *Engine) ConfirmMerge(ctx context.Context, id string, mode types.MergeMode, commitMessage string) error {
	if !e.mutations.Begin(id, MutationMerge) {
		return nil
	}

	e.mu.Lock()
	if e.dialog.openFor(id) {
		e.dialog.Status = MergeDialogRunning
		e.dialog.Err = ""
	}
	e.mu.Unlock()
	e.notifySubscribers()

	err := e.backend.MergeSession(ctx, id, mode, commitMessage)
	e.mutations.End(id, MutationMerge)

	e.mu.Lock()
	if e.dialog.openFor(id) {
		if err != nil {
			e.dialog.Status = MergeDialogReady
			e.dialog.Err = err.Error()
		} else {
			e.dialog = MergeDialogState{}
		}
	}
	e.mu.Unlock()
	e.notifySubscribers()
	return err
}

// ShortcutMerge is the keyboard fast path. It always fetches a fresh
// preview: up-to-date previews mark the session merged and block,
// conflicting previews open a pre-populated dialog, and clean previews still
// require explicit confirmation through the dialog.
func (e *Engine) ShortcutMerge(ctx context.Context, id, commitMessageOverride string) ShortcutResult {
	e.mu.Lock()
	session := e.store.session(id)
	switch {
	case session == nil:
		e.mu.Unlock()
		return ShortcutResult{Outcome: ShortcutBlocked, Reason: ShortcutReasonNoSession}
	case session.State == types.SessionStateSpec:
		e.mu.Unlock()
		return ShortcutResult{Outcome: ShortcutBlocked, Reason: ShortcutReasonSessionIsSpec}
	}
	e.mu.Unlock()
	if e.mutations.Has(id, MutationMerge) {
		return ShortcutResult{Outcome: ShortcutBlocked, Reason: ShortcutReasonMergeInFlight}
	}

	preview, err := e.backend.GetMergePreview(ctx, id)
	if err != nil {
		e.log.Warn("shortcut merge preview failed",
			logging.F("session", id), logging.F("error", err))
		return ShortcutResult{Outcome: ShortcutError, Reason: ShortcutReasonPreviewFailed, Err: err.Error()}
	}

	e.mu.Lock()
	e.previews[id] = preview.Clone()

	if preview.IsUpToDate {
		e.store.setStatus(id, types.MergeStatusMerged)
		e.mu.Unlock()
		e.notifySubscribers()
		return ShortcutResult{Outcome: ShortcutBlocked, Reason: ShortcutReasonAlreadyMerged}
	}

	commitMessage := commitMessageOverride
	if commitMessage == "" {
		commitMessage = preview.DefaultCommitMessage
	}
	e.dialog = MergeDialogState{
		Open:          true,
		Status:        MergeDialogReady,
		SessionID:     id,
		Preview:       preview.Clone(),
		CommitMessage: commitMessage,
	}

	reason := ShortcutReasonConfirmRequired
	if preview.HasConflicts {
		e.store.setStatus(id, types.MergeStatusConflict)
		reason = ShortcutReasonConflict
	} else if commitMessage == "" {
		reason = ShortcutReasonMissingCommitMessage
	}
	e.mu.Unlock()
	e.notifySubscribers()
	return ShortcutResult{Outcome: ShortcutNeedsModal, Reason: reason}
}

// handleGitOperationStarted reacts to the backend reporting a merge
// operation under way, whether or not this client initiated it.
func (e *Engine) handleGitOperationStarted(ev *types.GitOperationEvent) {
	e.mu.Lock()
	tracked := e.store.has(ev.ID)
	if tracked {
		delete(e.mergeErrors, ev.ID)
	}
	if tracked && e.dialog.openFor(ev.ID) {
		e.dialog.Status = MergeDialogRunning
		e.dialog.Err = ""
	}
	e.mu.Unlock()
	if !tracked {
		return
	}
	e.mutations.Force(ev.ID, MutationMerge)
	e.notifySubscribers()
}

func (e *Engine) handleGitOperationCompleted(ctx context.Context, ev *types.GitOperationEvent) {
	e.mutations.End(ev.ID, MutationMerge)

	e.mu.Lock()
	switch ev.Status {
	case types.GitOperationStatusMerged, types.GitOperationStatusUpToDate:
		e.store.setStatus(ev.ID, types.MergeStatusMerged)
	case types.GitOperationStatusConflict:
		e.store.setStatus(ev.ID, types.MergeStatusConflict)
	}
	if e.dialog.openFor(ev.ID) {
		e.dialog = MergeDialogState{}
	}
	autoCancel := e.cfg.Merge.AutoCancelAfterMerge &&
		(ev.Status == types.GitOperationStatusMerged || ev.Status == types.GitOperationStatusUpToDate)
	e.mu.Unlock()
	e.notifySubscribers()

	if autoCancel {
		id := ev.ID
		// The push stream's context can close while the cancel is in
		// flight; the follow-up RPCs outlive it, as starts do.
		ctx := context.WithoutCancel(ctx)
		e.async(func() {
			if !e.mutations.Begin(id, MutationRemove) {
				return
			}
			err := e.backend.CancelSession(ctx, id)
			e.mutations.End(id, MutationRemove)
			if err != nil {
				e.log.Warn("auto-cancel after merge failed",
					logging.F("session", id), logging.F("error", err))
				return
			}
			_ = e.Refresh(ctx, ReasonAutoCancel)
		})
	}
}

// handleGitOperationFailed records the failure once per distinct message so
// repeated background retries of the same merge do not spam the user.
func (e *Engine) handleGitOperationFailed(ev *types.GitOperationEvent) {
	e.mutations.End(ev.ID, MutationMerge)

	e.mu.Lock()
	if ev.Status == types.GitOperationStatusConflict {
		e.store.setStatus(ev.ID, types.MergeStatusConflict)
	}
	duplicate := e.mergeErrors[ev.ID] == ev.Error && ev.Error != ""
	e.mergeErrors[ev.ID] = ev.Error
	if e.dialog.openFor(ev.ID) {
		e.dialog.Status = MergeDialogReady
		e.dialog.Err = ev.Error
	}
	e.mu.Unlock()
	e.notifySubscribers()

	if !duplicate && ev.Error != "" {
		e.notify(Notification{
			Kind:      NotificationMergeFailed,
			SessionID: ev.ID,
			Message:   ev.Error,
		})
	}
}
