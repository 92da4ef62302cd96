package engine

import (
	"context"
	"reflect"
	"testing"
	"time"

	"surface/internal/types"
)

func dispatchTestEngine(backend *fakeBackend, sessions ...*types.Session) (*Engine, *Dispatcher) {
	e := newTestEngine(backend, newFakeClock())
	if len(sessions) > 0 {
		e.ApplySnapshot(context.Background(), sessions, "", ReasonManualRefresh)
	}
	return e, NewDispatcher(e, nil)
}

func TestDispatchSessionsRefreshed(t *testing.T) {
	e, d := dispatchTestEngine(&fakeBackend{})
	d.Dispatch(context.Background(), types.PushEvent{
		Kind: types.EventSessionsRefreshed,
		Refreshed: &types.SessionsRefreshedEvent{
			Sessions: []*types.Session{runningSession("s1")},
		},
	})
	if got := sessionIDs(e.Sessions()); !reflect.DeepEqual(got, []string{"s1"}) {
		t.Fatalf("refreshed snapshot not applied: %v", got)
	}
}

func TestDispatchSessionAdded(t *testing.T) {
	e, d := dispatchTestEngine(&fakeBackend{}, runningSession("s1"))
	d.Dispatch(context.Background(), types.PushEvent{
		Kind: types.EventSessionAdded,
		Added: &types.SessionAddedEvent{
			ID:        "s2",
			Branch:    "feature/s2",
			CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	})
	sessions := e.Sessions()
	if got := sessionIDs(sessions); !reflect.DeepEqual(got, []string{"s1", "s2"}) {
		t.Fatalf("added session missing: %v", got)
	}
	if sessions[1].State != types.SessionStateRunning || sessions[1].Branch != "feature/s2" {
		t.Fatalf("added session malformed: %#v", sessions[1])
	}
}

func TestDispatchSessionRemovedOverridesExpectedEntry(t *testing.T) {
	backend := &fakeBackend{}
	e, d := dispatchTestEngine(backend, runningSession("s1"))
	e.ExpectSession("s1", runningSession("s1"))

	d.Dispatch(context.Background(), types.PushEvent{
		Kind:    types.EventSessionRemoved,
		Removed: &types.SessionRemovedEvent{ID: "s1"},
	})

	// The explicit removal sticks despite the optimistic placeholder.
	if got := e.Sessions(); len(got) != 0 {
		t.Fatalf("removed session still visible: %v", sessionIDs(got))
	}
	if got := backend.released(); !reflect.DeepEqual(got, []string{"s1"}) {
		t.Fatalf("terminal not released: %v", got)
	}
}

func TestDispatchSessionCancelling(t *testing.T) {
	e, d := dispatchTestEngine(&fakeBackend{}, runningSession("s1"))
	d.Dispatch(context.Background(), types.PushEvent{
		Kind:       types.EventSessionCancelling,
		Cancelling: &types.SessionCancellingEvent{ID: "s1"},
	})
	if s := e.Session("s1"); s == nil || !s.Cancelling {
		t.Fatalf("cancelling flag not set: %#v", s)
	}
}

func TestDispatchSessionActivity(t *testing.T) {
	e, d := dispatchTestEngine(&fakeBackend{}, runningSession("s1"))
	blocked := true
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	d.Dispatch(context.Background(), types.PushEvent{
		Kind: types.EventSessionActivity,
		Activity: &types.SessionActivityEvent{
			ID:             "s1",
			LastActivityAt: at,
			CurrentTask:    "wiring tests",
			Progress:       &types.TaskProgress{Completed: 3, Total: 5},
			Blocked:        &blocked,
		},
	})
	s := e.Session("s1")
	if s == nil || s.CurrentTask != "wiring tests" || !s.Attention {
		t.Fatalf("activity not applied: %#v", s)
	}
	if !s.UpdatedAt.Equal(at) {
		t.Fatalf("activity timestamp not applied: %v", s.UpdatedAt)
	}
	if s.Progress == nil || s.Progress.Completed != 3 || s.Progress.Total != 5 {
		t.Fatalf("progress not applied: %#v", s.Progress)
	}
}

func TestDispatchSessionGitStatsDerivesMergedStatus(t *testing.T) {
	e, d := dispatchTestEngine(&fakeBackend{}, runningSession("s1"))
	upToDate := true
	d.Dispatch(context.Background(), types.PushEvent{
		Kind: types.EventSessionGitStats,
		GitStats: &types.SessionGitStatsEvent{
			ID:         "s1",
			IsUpToDate: &upToDate,
		},
	})
	if got := e.MergeStatus("s1"); got != types.MergeStatusMerged {
		t.Fatalf("expected merged status, got %q", got)
	}
}

func TestDispatchSessionGitStatsAppliesDiff(t *testing.T) {
	e, d := dispatchTestEngine(&fakeBackend{}, runningSession("s1"))
	d.Dispatch(context.Background(), types.PushEvent{
		Kind: types.EventSessionGitStats,
		GitStats: &types.SessionGitStatsEvent{
			ID:             "s1",
			FilesChanged:   2,
			Additions:      40,
			Deletions:      3,
			HasUncommitted: true,
		},
	})
	s := e.Session("s1")
	if s.DiffStats == nil || s.DiffStats.Additions != 40 || !s.HasUncommitted {
		t.Fatalf("diff stats not applied: %#v", s)
	}
}

func TestDispatchIgnoresEventsForUntrackedSessions(t *testing.T) {
	e, d := dispatchTestEngine(&fakeBackend{}, runningSession("s1"))
	d.Dispatch(context.Background(), types.PushEvent{
		Kind:       types.EventSessionCancelling,
		Cancelling: &types.SessionCancellingEvent{ID: "ghost"},
	})
	if got := sessionIDs(e.Sessions()); !reflect.DeepEqual(got, []string{"s1"}) {
		t.Fatalf("untracked event changed the list: %v", got)
	}
}

func TestDispatchUnknownKindIsDropped(t *testing.T) {
	e, d := dispatchTestEngine(&fakeBackend{}, runningSession("s1"))
	d.Dispatch(context.Background(), types.PushEvent{Kind: types.EventKind("surprise")})
	if got := sessionIDs(e.Sessions()); !reflect.DeepEqual(got, []string{"s1"}) {
		t.Fatalf("unknown event changed the list: %v", got)
	}
}

func TestDispatcherRunStopsWhenStreamCloses(t *testing.T) {
	e, d := dispatchTestEngine(&fakeBackend{})
	events := make(chan types.PushEvent, 1)
	events <- types.PushEvent{
		Kind: types.EventSessionsRefreshed,
		Refreshed: &types.SessionsRefreshedEvent{
			Sessions: []*types.Session{runningSession("s1")},
		},
	}
	close(events)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), events)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on channel close")
	}
	if got := sessionIDs(e.Sessions()); !reflect.DeepEqual(got, []string{"s1"}) {
		t.Fatalf("event before close not applied: %v", got)
	}
}
