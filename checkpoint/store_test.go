package checkpoint_test

import (
	"testing"

	"github.com/tailored-agentic-units/durable-kernel/checkpoint"
)

func TestStore_MergeNeverDowngradesTerminal(t *testing.T) {
	s := checkpoint.NewStore()
	s.Merge(&checkpoint.Operation{ID: "1", Kind: checkpoint.KindStep, Status: checkpoint.StatusSucceeded, Result: "done"})

	// A stale/out-of-order backend response claiming the same id is back to
	// STARTED must never be allowed to overwrite the terminal record.
	s.Merge(&checkpoint.Operation{ID: "1", Kind: checkpoint.KindStep, Status: checkpoint.StatusStarted})

	got := s.Get("1")
	if got.Status != checkpoint.StatusSucceeded {
		t.Errorf("Status = %v, want SUCCEEDED (sticky)", got.Status)
	}
	if got.Result != "done" {
		t.Errorf("Result = %q, want %q", got.Result, "done")
	}
}

func TestStore_GetReturnsClone(t *testing.T) {
	s := checkpoint.NewStore()
	s.Merge(&checkpoint.Operation{ID: "1", Kind: checkpoint.KindStep, Status: checkpoint.StatusStarted})

	got := s.Get("1")
	got.Status = checkpoint.StatusFailed

	fresh := s.Get("1")
	if fresh.Status != checkpoint.StatusStarted {
		t.Errorf("mutating a Get() result leaked into the store: Status = %v", fresh.Status)
	}
}

func TestStore_ValidateIdentity_MismatchIsNonDeterministic(t *testing.T) {
	s := checkpoint.NewStore()
	s.Merge(&checkpoint.Operation{ID: "1", Kind: checkpoint.KindStep, Name: "create", Status: checkpoint.StatusSucceeded})

	if err := s.ValidateIdentity("1", checkpoint.KindStep, "create", nil); err != nil {
		t.Errorf("ValidateIdentity matching tuple: err = %v, want nil", err)
	}
	if err := s.ValidateIdentity("1", checkpoint.KindWait, "create", nil); err == nil {
		t.Error("ValidateIdentity mismatched kind: want error, got nil")
	}
	if err := s.ValidateIdentity("1", checkpoint.KindStep, "other-name", nil); err == nil {
		t.Error("ValidateIdentity mismatched name: want error, got nil")
	}
}

func TestStore_ChildIDs(t *testing.T) {
	s := checkpoint.NewStore()
	parent := "1"
	s.Merge(&checkpoint.Operation{ID: "1", Kind: checkpoint.KindContext, Status: checkpoint.StatusStarted})
	s.Merge(&checkpoint.Operation{ID: "1-1", Kind: checkpoint.KindStep, ParentID: &parent, Status: checkpoint.StatusSucceeded})
	s.Merge(&checkpoint.Operation{ID: "1-2", Kind: checkpoint.KindStep, ParentID: &parent, Status: checkpoint.StatusSucceeded})
	s.Merge(&checkpoint.Operation{ID: "2", Kind: checkpoint.KindStep, Status: checkpoint.StatusSucceeded})

	got := s.ChildIDs("1")
	want := []string{"1-1", "1-2"}
	if len(got) != len(want) {
		t.Fatalf("ChildIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ChildIDs[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
