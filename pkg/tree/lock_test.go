package tree

import "testing"

func mustCreate(t *testing.T, tr *Tree, name string) *Container {
	t.Helper()
	c, err := tr.Create(name, Credentials{})
	if err != nil {
		t.Fatalf("Create(%q): %v", name, err)
	}
	return c
}

func TestReadLocksCompatible(t *testing.T) {
	tr := New(64)
	a := mustCreate(t, tr, "a")

	tr.ReadLock(a)
	if err := tr.TryReadLock(a); err != nil {
		t.Fatalf("second read lock should succeed: %v", err)
	}
	tr.UnlockRead(a)
	tr.UnlockRead(a)
}

func TestWriteExcludesReaders(t *testing.T) {
	tr := New(64)
	a := mustCreate(t, tr, "a")

	tr.WriteLock(a)
	if err := tr.TryReadLock(a); err == nil {
		t.Fatal("read lock should be refused while write held")
	}
	tr.UnlockWrite(a)
}

func TestWriteOnAncestorBlockedByDescendant(t *testing.T) {
	tr := New(64)
	a := mustCreate(t, tr, "a")
	b := mustCreate(t, tr, "a/b")

	tr.ReadLock(b)
	if err := tr.TryWriteLock(a); err == nil {
		t.Fatal("write lock on ancestor should be refused while descendant held")
	}
	tr.UnlockRead(b)

	if err := tr.TryWriteLock(a); err != nil {
		t.Fatalf("write lock should now succeed: %v", err)
	}
	tr.UnlockWrite(a)
}

func TestReadOnAncestorAllowedWhileDescendantWriteHeld(t *testing.T) {
	tr := New(64)
	a := mustCreate(t, tr, "a")
	b := mustCreate(t, tr, "a/b")

	tr.WriteLock(b)
	if err := tr.TryReadLock(a); err != nil {
		t.Fatalf("read lock on ancestor should be allowed while descendant write held: %v", err)
	}
	tr.UnlockRead(a)
	tr.UnlockWrite(b)
}

func TestWriteBlockedByAncestorWrite(t *testing.T) {
	tr := New(64)
	a := mustCreate(t, tr, "a")
	b := mustCreate(t, tr, "a/b")

	tr.WriteLock(a)
	if err := tr.TryWriteLock(b); err == nil {
		t.Fatal("write lock on descendant should be refused while ancestor write held")
	}
	tr.UnlockWrite(a)
	if err := tr.TryWriteLock(b); err != nil {
		t.Fatalf("write lock should now succeed: %v", err)
	}
	tr.UnlockWrite(b)
}

func TestIsHeldPinsAgainstDestroy(t *testing.T) {
	tr := New(64)
	a := mustCreate(t, tr, "a")
	tr.ReadLock(a)
	if !a.IsHeld() {
		t.Fatal("expected container to report held")
	}
	if err := tr.Destroy(a); err == nil {
		t.Fatal("expected destroy to refuse a held, non-stopped-only check aside")
	}
	tr.UnlockRead(a)
}
