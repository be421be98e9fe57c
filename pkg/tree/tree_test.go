package tree

import "testing"

func TestCreateRejectsDuplicateName(t *testing.T) {
	tr := New(64)
	mustCreate(t, tr, "a")
	if _, err := tr.Create("a", Credentials{}); err == nil {
		t.Fatal("expected error creating duplicate container")
	}
}

func TestCreateRejectsMissingParent(t *testing.T) {
	tr := New(64)
	if _, err := tr.Create("a/b", Credentials{}); err == nil {
		t.Fatal("expected error creating container with missing parent")
	}
}

func TestDestroyRemovesContainerAndSubtree(t *testing.T) {
	tr := New(64)
	a := mustCreate(t, tr, "a")
	mustCreate(t, tr, "a/b")

	if err := tr.Destroy(a); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := tr.Get("a"); err == nil {
		t.Fatal("expected a to be gone")
	}
	if _, err := tr.Get("a/b"); err == nil {
		t.Fatal("expected a/b to be gone")
	}
}

func TestDestroyBlockedByHeldDescendant(t *testing.T) {
	tr := New(64)
	a := mustCreate(t, tr, "a")
	b := mustCreate(t, tr, "a/b")

	tr.ReadLock(b)
	defer tr.UnlockRead(b)

	if err := tr.Destroy(a); err == nil {
		t.Fatal("expected Destroy to be blocked by a held descendant")
	}
	if _, err := tr.Get("a"); err != nil {
		t.Fatalf("a should still exist after blocked Destroy, Get: %v", err)
	}
	if _, err := tr.Get("a/b"); err != nil {
		t.Fatalf("a/b should still exist after blocked Destroy, Get: %v", err)
	}
}

func TestDestroyRequiresStopped(t *testing.T) {
	tr := New(64)
	a := mustCreate(t, tr, "a")
	_ = tr.Transition(a, TriggerStart, true)

	if err := tr.Destroy(a); err == nil {
		t.Fatal("expected Destroy to reject a non-Stopped container")
	}
}
