package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"surface/internal/config"
	"surface/internal/types"
)

func configWithAutoCancel() config.Config {
	cfg := config.Default()
	cfg.Merge.AutoCancelAfterMerge = true
	return cfg
}

func drainNotifications(e *Engine) int {
	count := 0
	for {
		select {
		case <-e.Notifications():
			count++
		default:
			return count
		}
	}
}

func mergeTestEngine(t *testing.T, backend *fakeBackend, extra ...Option) *Engine {
	t.Helper()
	e := newTestEngine(backend, newFakeClock(), extra...)
	e.ApplySnapshot(context.Background(), []*types.Session{runningSession("s1")}, "", ReasonManualRefresh)
	return e
}

func TestOpenMergeDialogLoadsPreview(t *testing.T) {
	backend := &fakeBackend{
		previewFn: func(id string) (*types.MergePreview, error) {
			return &types.MergePreview{
				SessionID:            id,
				ParentBranch:         "main",
				DefaultCommitMessage: "land s1",
			}, nil
		},
	}
	e := mergeTestEngine(t, backend)

	if err := e.OpenMergeDialog(context.Background(), "s1"); err != nil {
		t.Fatalf("OpenMergeDialog: %v", err)
	}
	dialog := e.MergeDialog()
	if !dialog.Open || dialog.Status != MergeDialogReady {
		t.Fatalf("unexpected dialog state: %#v", dialog)
	}
	if dialog.CommitMessage != "land s1" {
		t.Fatalf("default commit message not applied: %q", dialog.CommitMessage)
	}
	if dialog.Preview == nil || dialog.Preview.ParentBranch != "main" {
		t.Fatalf("preview missing from dialog: %#v", dialog.Preview)
	}
}

func TestOpenMergeDialogPreviewFailureKeepsDialogOpen(t *testing.T) {
	backend := &fakeBackend{
		previewFn: func(string) (*types.MergePreview, error) {
			return nil, errors.New("preview failed")
		},
	}
	e := mergeTestEngine(t, backend)

	if err := e.OpenMergeDialog(context.Background(), "s1"); err == nil {
		t.Fatalf("expected preview error")
	}
	dialog := e.MergeDialog()
	if !dialog.Open || dialog.Status != MergeDialogIdle {
		t.Fatalf("unexpected dialog state: %#v", dialog)
	}
	if dialog.Err == "" {
		t.Fatalf("error text missing from dialog")
	}
}

func TestOpenMergeDialogConflictPreviewSetsStatus(t *testing.T) {
	backend := &fakeBackend{
		previewFn: func(id string) (*types.MergePreview, error) {
			return &types.MergePreview{
				SessionID:        id,
				HasConflicts:     true,
				ConflictingPaths: []string{"main.go"},
			}, nil
		},
	}
	e := mergeTestEngine(t, backend)

	if err := e.OpenMergeDialog(context.Background(), "s1"); err != nil {
		t.Fatalf("OpenMergeDialog: %v", err)
	}
	if got := e.MergeStatus("s1"); got != types.MergeStatusConflict {
		t.Fatalf("expected conflict status, got %q", got)
	}
}

func TestCloseMergeDialogResets(t *testing.T) {
	e := mergeTestEngine(t, &fakeBackend{})
	if err := e.OpenMergeDialog(context.Background(), "s1"); err != nil {
		t.Fatalf("OpenMergeDialog: %v", err)
	}
	e.CloseMergeDialog()
	if dialog := e.MergeDialog(); dialog.Open {
		t.Fatalf("dialog still open after close: %#v", dialog)
	}
}

func TestConfirmMergeSuccessClosesDialog(t *testing.T) {
	backend := &fakeBackend{}
	e := mergeTestEngine(t, backend)
	ctx := context.Background()

	if err := e.OpenMergeDialog(ctx, "s1"); err != nil {
		t.Fatalf("OpenMergeDialog: %v", err)
	}
	if err := e.ConfirmMerge(ctx, "s1", types.MergeModeSquash, "land s1"); err != nil {
		t.Fatalf("ConfirmMerge: %v", err)
	}
	if dialog := e.MergeDialog(); dialog.Open {
		t.Fatalf("dialog still open after successful merge: %#v", dialog)
	}
	merges := backend.merges()
	if len(merges) != 1 || merges[0].Mode != types.MergeModeSquash || merges[0].CommitMessage != "land s1" {
		t.Fatalf("unexpected merge calls: %#v", merges)
	}
	if e.MutationInFlight("s1", MutationMerge) {
		t.Fatalf("merge mutation still recorded after completion")
	}
}

func TestConfirmMergeFailureReturnsDialogToReady(t *testing.T) {
	backend := &fakeBackend{
		mergeFn: func(string) error { return errors.New("merge rejected") },
	}
	e := mergeTestEngine(t, backend)
	ctx := context.Background()

	if err := e.OpenMergeDialog(ctx, "s1"); err != nil {
		t.Fatalf("OpenMergeDialog: %v", err)
	}
	if err := e.ConfirmMerge(ctx, "s1", types.MergeModeSquash, "land s1"); err == nil {
		t.Fatalf("expected merge error")
	}
	dialog := e.MergeDialog()
	if !dialog.Open || dialog.Status != MergeDialogReady || dialog.Err == "" {
		t.Fatalf("unexpected dialog state after failure: %#v", dialog)
	}
	if e.MutationInFlight("s1", MutationMerge) {
		t.Fatalf("merge mutation still recorded after failure")
	}
}

func TestConfirmMergeConcurrentCallsIssueOneRPC(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	backend := &fakeBackend{}
	backend.mergeFn = func(string) error {
		close(entered)
		<-release
		return nil
	}
	e := mergeTestEngine(t, backend)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = e.ConfirmMerge(ctx, "s1", types.MergeModeSquash, "land s1")
	}()
	<-entered

	// The double-tap while the RPC is in flight is a no-op.
	if err := e.ConfirmMerge(ctx, "s1", types.MergeModeSquash, "land s1"); err != nil {
		t.Fatalf("duplicate confirm: %v", err)
	}
	close(release)
	wg.Wait()

	if got := backend.merges(); len(got) != 1 {
		t.Fatalf("expected one merge RPC, got %#v", got)
	}
}

func TestShortcutMergeBlockedCases(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(backend, newFakeClock())
	ctx := context.Background()
	e.ApplySnapshot(ctx, []*types.Session{specSession("draft")}, "", ReasonManualRefresh)

	if res := e.ShortcutMerge(ctx, "ghost", ""); res.Outcome != ShortcutBlocked || res.Reason != ShortcutReasonNoSession {
		t.Fatalf("unexpected result for unknown id: %#v", res)
	}
	if res := e.ShortcutMerge(ctx, "draft", ""); res.Outcome != ShortcutBlocked || res.Reason != ShortcutReasonSessionIsSpec {
		t.Fatalf("unexpected result for spec session: %#v", res)
	}
}

func TestShortcutMergeBlockedWhileMergeInFlight(t *testing.T) {
	e := mergeTestEngine(t, &fakeBackend{})
	e.mutations.Force("s1", MutationMerge)

	res := e.ShortcutMerge(context.Background(), "s1", "")
	if res.Outcome != ShortcutBlocked || res.Reason != ShortcutReasonMergeInFlight {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestShortcutMergeUpToDateMarksMerged(t *testing.T) {
	backend := &fakeBackend{
		previewFn: func(id string) (*types.MergePreview, error) {
			return &types.MergePreview{SessionID: id, IsUpToDate: true}, nil
		},
	}
	e := mergeTestEngine(t, backend)

	res := e.ShortcutMerge(context.Background(), "s1", "")
	if res.Outcome != ShortcutBlocked || res.Reason != ShortcutReasonAlreadyMerged {
		t.Fatalf("unexpected result: %#v", res)
	}
	if got := e.MergeStatus("s1"); got != types.MergeStatusMerged {
		t.Fatalf("expected merged status, got %q", got)
	}
	if dialog := e.MergeDialog(); dialog.Open {
		t.Fatalf("up-to-date shortcut opened a dialog: %#v", dialog)
	}
}

func TestShortcutMergeConflictOpensDialog(t *testing.T) {
	backend := &fakeBackend{
		previewFn: func(id string) (*types.MergePreview, error) {
			return &types.MergePreview{
				SessionID:            id,
				HasConflicts:         true,
				ConflictingPaths:     []string{"main.go"},
				DefaultCommitMessage: "land s1",
			}, nil
		},
	}
	e := mergeTestEngine(t, backend)

	res := e.ShortcutMerge(context.Background(), "s1", "")
	if res.Outcome != ShortcutNeedsModal || res.Reason != ShortcutReasonConflict {
		t.Fatalf("unexpected result: %#v", res)
	}
	dialog := e.MergeDialog()
	if !dialog.Open || dialog.Status != MergeDialogReady || dialog.Preview == nil {
		t.Fatalf("dialog not populated: %#v", dialog)
	}
	if got := e.MergeStatus("s1"); got != types.MergeStatusConflict {
		t.Fatalf("expected conflict status, got %q", got)
	}
}

func TestShortcutMergeMissingCommitMessage(t *testing.T) {
	backend := &fakeBackend{
		previewFn: func(id string) (*types.MergePreview, error) {
			return &types.MergePreview{SessionID: id}, nil
		},
	}
	e := mergeTestEngine(t, backend)

	res := e.ShortcutMerge(context.Background(), "s1", "")
	if res.Outcome != ShortcutNeedsModal || res.Reason != ShortcutReasonMissingCommitMessage {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestShortcutMergeCleanPreviewRequiresConfirmation(t *testing.T) {
	backend := &fakeBackend{
		previewFn: func(id string) (*types.MergePreview, error) {
			return &types.MergePreview{SessionID: id, DefaultCommitMessage: "land s1"}, nil
		},
	}
	e := mergeTestEngine(t, backend)

	res := e.ShortcutMerge(context.Background(), "s1", "")
	if res.Outcome != ShortcutNeedsModal || res.Reason != ShortcutReasonConfirmRequired {
		t.Fatalf("unexpected result: %#v", res)
	}
	if dialog := e.MergeDialog(); dialog.CommitMessage != "land s1" {
		t.Fatalf("commit message not prefilled: %#v", dialog)
	}
	if got := backend.merges(); len(got) != 0 {
		t.Fatalf("shortcut merged without confirmation: %#v", got)
	}
}

func TestShortcutMergePreviewFailure(t *testing.T) {
	backend := &fakeBackend{
		previewFn: func(string) (*types.MergePreview, error) {
			return nil, errors.New("preview failed")
		},
	}
	e := mergeTestEngine(t, backend)

	res := e.ShortcutMerge(context.Background(), "s1", "")
	if res.Outcome != ShortcutError || res.Reason != ShortcutReasonPreviewFailed || res.Err == "" {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestGitOperationFailedDeduplicatesNotifications(t *testing.T) {
	e := mergeTestEngine(t, &fakeBackend{})
	ev := &types.GitOperationEvent{
		ID:        "s1",
		Operation: "merge",
		Status:    types.GitOperationStatusConflict,
		Error:     "merge conflict in main.go",
	}

	e.handleGitOperationFailed(ev)
	e.handleGitOperationFailed(ev)

	if got := e.MergeStatus("s1"); got != types.MergeStatusConflict {
		t.Fatalf("expected conflict status, got %q", got)
	}
	if count := drainNotifications(e); count != 1 {
		t.Fatalf("expected exactly one failure notification, got %d", count)
	}
}

func TestGitOperationFailedNotifiesAgainOnNewError(t *testing.T) {
	e := mergeTestEngine(t, &fakeBackend{})

	e.handleGitOperationFailed(&types.GitOperationEvent{ID: "s1", Error: "first"})
	e.handleGitOperationFailed(&types.GitOperationEvent{ID: "s1", Error: "second"})

	if count := drainNotifications(e); count != 2 {
		t.Fatalf("expected two notifications for distinct errors, got %d", count)
	}
}

func TestGitOperationCompletedMarksMergedAndClosesDialog(t *testing.T) {
	backend := &fakeBackend{}
	e := mergeTestEngine(t, backend)
	ctx := context.Background()

	if err := e.OpenMergeDialog(ctx, "s1"); err != nil {
		t.Fatalf("OpenMergeDialog: %v", err)
	}
	e.handleGitOperationCompleted(ctx, &types.GitOperationEvent{
		ID:        "s1",
		Operation: "merge",
		Status:    types.GitOperationStatusMerged,
	})

	if got := e.MergeStatus("s1"); got != types.MergeStatusMerged {
		t.Fatalf("expected merged status, got %q", got)
	}
	if dialog := e.MergeDialog(); dialog.Open {
		t.Fatalf("dialog still open after completion: %#v", dialog)
	}
	if got := backend.cancels(); len(got) != 0 {
		t.Fatalf("auto-cancel ran while disabled: %v", got)
	}
}

func TestGitOperationCompletedAutoCancels(t *testing.T) {
	cfg := configWithAutoCancel()
	backend := &fakeBackend{}
	e := mergeTestEngine(t, backend, WithConfig(cfg))

	e.handleGitOperationCompleted(context.Background(), &types.GitOperationEvent{
		ID:        "s1",
		Operation: "merge",
		Status:    types.GitOperationStatusMerged,
	})

	if got := backend.cancels(); len(got) != 1 || got[0] != "s1" {
		t.Fatalf("unexpected auto-cancel calls: %v", got)
	}
	// The follow-up refresh ran through the coalescer.
	if got := backend.listCount(); got != 1 {
		t.Fatalf("expected one refresh after auto-cancel, got %d", got)
	}
}

func TestGitOperationCompletedAutoCancelSurvivesStreamShutdown(t *testing.T) {
	cfg := configWithAutoCancel()
	backend := &fakeBackend{}
	e := mergeTestEngine(t, backend, WithConfig(cfg))

	// The dispatcher's context closes right as the completion lands; the
	// cancel RPC must still go out.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.handleGitOperationCompleted(ctx, &types.GitOperationEvent{
		ID:        "s1",
		Operation: "merge",
		Status:    types.GitOperationStatusMerged,
	})

	if got := backend.cancels(); len(got) != 1 || got[0] != "s1" {
		t.Fatalf("auto-cancel did not outlive the stream context: %v", got)
	}
}

func TestGitOperationStartedMarksMutationInFlight(t *testing.T) {
	e := mergeTestEngine(t, &fakeBackend{})

	e.handleGitOperationStarted(&types.GitOperationEvent{ID: "s1", Operation: "merge"})
	if !e.MutationInFlight("s1", MutationMerge) {
		t.Fatalf("backend-initiated merge not tracked")
	}

	// Untracked ids are ignored.
	e.handleGitOperationStarted(&types.GitOperationEvent{ID: "ghost", Operation: "merge"})
	if e.MutationInFlight("ghost", MutationMerge) {
		t.Fatalf("untracked session tracked a mutation")
	}
}
