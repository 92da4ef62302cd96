package engine

import "testing"

func TestMutationTrackerRejectsDuplicateKind(t *testing.T) {
	tr := newMutationTracker()
	if !tr.Begin("s1", MutationMerge) {
		t.Fatalf("first Begin rejected")
	}
	if tr.Begin("s1", MutationMerge) {
		t.Fatalf("duplicate merge accepted")
	}
	if !tr.Has("s1", MutationMerge) {
		t.Fatalf("merge not recorded")
	}
}

func TestMutationTrackerKindsAreIndependent(t *testing.T) {
	tr := newMutationTracker()
	if !tr.Begin("s1", MutationMerge) {
		t.Fatalf("Begin merge rejected")
	}
	if !tr.Begin("s1", MutationRemove) {
		t.Fatalf("remove blocked by unrelated merge")
	}
	tr.End("s1", MutationMerge)
	if tr.Has("s1", MutationMerge) {
		t.Fatalf("merge still recorded after End")
	}
	if !tr.Has("s1", MutationRemove) {
		t.Fatalf("End of merge cleared the remove entry")
	}
}

func TestMutationTrackerForceRecordsUnconditionally(t *testing.T) {
	tr := newMutationTracker()
	tr.Force("s1", MutationMerge)
	tr.Force("s1", MutationMerge)
	if !tr.Has("s1", MutationMerge) {
		t.Fatalf("forced merge not recorded")
	}
	tr.End("s1", MutationMerge)
	if tr.Has("s1", MutationMerge) {
		t.Fatalf("forced merge survived End")
	}
}

func TestMutationTrackerClearDropsAllKinds(t *testing.T) {
	tr := newMutationTracker()
	tr.Force("s1", MutationMerge)
	tr.Force("s1", MutationRemove)
	tr.Clear("s1")
	if tr.Has("s1", MutationMerge) || tr.Has("s1", MutationRemove) {
		t.Fatalf("Clear left entries behind")
	}
}
