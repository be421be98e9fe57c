package session

import (
	"testing"

	"github.com/bowlofstew/porto/pkg/tree"
)

func TestCheckReadOnlyRejectsWrite(t *testing.T) {
	if err := Check(tree.AccessReadOnly, PermWrite, false); err == nil {
		t.Fatal("expected ReadOnly to reject write")
	}
	if err := Check(tree.AccessReadOnly, PermRead, false); err != nil {
		t.Fatalf("expected ReadOnly to allow read: %v", err)
	}
}

func TestCheckChildOnlyRejectsCrossSubtree(t *testing.T) {
	if err := Check(tree.AccessChildOnly, PermRead, true); err == nil {
		t.Fatal("expected ChildOnly to reject cross-subtree access")
	}
	if err := Check(tree.AccessChildOnly, PermWrite, false); err != nil {
		t.Fatalf("expected ChildOnly to allow own-subtree write: %v", err)
	}
}

func TestCheckNormalRejectsSuperUser(t *testing.T) {
	if err := Check(tree.AccessNormal, PermSuperUser, false); err == nil {
		t.Fatal("expected Normal to reject super-user operation")
	}
}

func TestCheckSuperUserUnrestricted(t *testing.T) {
	if err := Check(tree.AccessSuperUser, PermSuperUser, true); err != nil {
		t.Fatalf("expected SuperUser unrestricted: %v", err)
	}
}

func TestCheckNoneRejectsEverything(t *testing.T) {
	if err := Check(tree.AccessNone, PermRead, false); err == nil {
		t.Fatal("expected None to reject read")
	}
}
