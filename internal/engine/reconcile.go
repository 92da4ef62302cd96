package engine

import (
	"time"

	"surface/internal/types"
)

// expectedEntry is the optimistic placeholder for a session the UI created
// or promoted and the backend has not yet reported. The payload, when
// present, is reinserted into snapshots that miss the id until the TTL
// lapses. Entries are scoped to the project that was active when they were
// registered; passes for other projects never see them.
type expectedEntry struct {
	ID        string
	Project   string
	ExpiresAt time.Time
	Payload   *types.Session
}

type reconcileInput struct {
	Incoming   []*types.Session
	Previous   []*types.Session
	PrevStates map[string]types.SessionState
	Expected   map[string]*expectedEntry
	Previews   map[string]*types.MergePreview
	// Protection maps session ids to the deadline of a removal-protection
	// window armed on an earlier Spec->Running transition.
	Protection       map[string]time.Time
	ProtectionWindow time.Duration
	Now              time.Time
}

type reconcileResult struct {
	Next []*types.Session

	// Removed lists ids dropped by this snapshot whose terminal release and
	// startup cleanup must run. ProtectedRemovals were dropped inside a live
	// protection window and skip the release side effects.
	Removed           []string
	ProtectedRemovals []string

	SatisfiedExpected []string
	ExpiredExpected   []string
	Reinjected        []string

	NextProtection map[string]time.Time
}

// reconcile folds an incoming snapshot into the previous state. It is a pure
// function of its input so interleaved triggers cannot observe or produce a
// half-applied pass.
func reconcile(in reconcileInput) reconcileResult {
	res := reconcileResult{NextProtection: map[string]time.Time{}}

	prevByID := make(map[string]*types.Session, len(in.Previous))
	for _, session := range in.Previous {
		prevByID[session.ID] = session
	}

	next := dedupeSessions(in.Incoming)
	for _, session := range next {
		carryForwardMergeFlags(session, prevByID[session.ID], in.Previews[session.ID])
	}

	present := make(map[string]bool, len(next))
	for _, session := range next {
		present[session.ID] = true
	}

	for id, expected := range in.Expected {
		if present[id] {
			res.SatisfiedExpected = append(res.SatisfiedExpected, id)
			continue
		}
		if !expected.ExpiresAt.After(in.Now) {
			res.ExpiredExpected = append(res.ExpiredExpected, id)
			continue
		}
		payload := expected.Payload
		if payload == nil {
			payload = prevByID[id]
		}
		if payload == nil {
			continue
		}
		next = append(next, payload.Clone())
		present[id] = true
		res.Reinjected = append(res.Reinjected, id)
	}

	// Carry live windows forward, then arm new ones for sessions that just
	// left Spec for Running.
	for id, deadline := range in.Protection {
		if deadline.After(in.Now) && present[id] {
			res.NextProtection[id] = deadline
		}
	}
	for _, session := range next {
		if in.PrevStates[session.ID] == types.SessionStateSpec &&
			session.State == types.SessionStateRunning {
			res.NextProtection[session.ID] = in.Now.Add(in.ProtectionWindow)
		}
	}

	for _, prev := range in.Previous {
		if present[prev.ID] {
			continue
		}
		if deadline, ok := in.Protection[prev.ID]; ok && deadline.After(in.Now) {
			res.ProtectedRemovals = append(res.ProtectedRemovals, prev.ID)
		} else {
			res.Removed = append(res.Removed, prev.ID)
		}
	}

	res.Next = next
	return res
}

// dedupeSessions resolves duplicate ids inside one incoming list. During a
// spec->session promotion the backend can transiently report both records;
// the non-Spec record must win so the promotion never flickers back to the
// stale Spec entry. Two non-Spec duplicates resolve last-wins, two Spec
// duplicates first-wins.
func dedupeSessions(list []*types.Session) []*types.Session {
	out := make([]*types.Session, 0, len(list))
	position := map[string]int{}
	for _, session := range list {
		if session == nil || session.ID == "" {
			continue
		}
		idx, seen := position[session.ID]
		if !seen {
			position[session.ID] = len(out)
			out = append(out, session)
			continue
		}
		kept := out[idx]
		keptSpec := kept.State == types.SessionStateSpec
		laterSpec := session.State == types.SessionStateSpec
		switch {
		case keptSpec && !laterSpec:
			out[idx] = session
		case !keptSpec && !laterSpec:
			out[idx] = session
		}
	}
	return out
}

// carryForwardMergeFlags fills merge fields that the incoming record omits
// from the previous record or a cached merge preview. Some event sources
// never report these fields; without the carry-forward every partial update
// would regress them to unknown.
func carryForwardMergeFlags(next, prev *types.Session, preview *types.MergePreview) {
	if next == nil {
		return
	}
	if next.MergeHasConflicts == nil {
		if prev != nil && prev.MergeHasConflicts != nil {
			v := *prev.MergeHasConflicts
			next.MergeHasConflicts = &v
		} else if preview != nil {
			v := preview.HasConflicts
			next.MergeHasConflicts = &v
		}
	}
	if next.MergeIsUpToDate == nil {
		if prev != nil && prev.MergeIsUpToDate != nil {
			v := *prev.MergeIsUpToDate
			next.MergeIsUpToDate = &v
		} else if preview != nil {
			v := preview.IsUpToDate
			next.MergeIsUpToDate = &v
		}
	}
	if next.MergeConflictingPaths == nil {
		if prev != nil && prev.MergeConflictingPaths != nil {
			next.MergeConflictingPaths = append([]string{}, prev.MergeConflictingPaths...)
		} else if preview != nil && preview.ConflictingPaths != nil {
			next.MergeConflictingPaths = append([]string{}, preview.ConflictingPaths...)
		}
	}
}
