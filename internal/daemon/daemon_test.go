package daemon

import (
	"testing"

	"github.com/bowlofstew/porto/internal/daemonconfig"
	"github.com/bowlofstew/porto/pkg/store"
	"github.com/bowlofstew/porto/pkg/tree"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := daemonconfig.Default()
	cfg.KVRoot = t.TempDir()
	return New(cfg)
}

func TestCgroupPathForStripsEmptyComponents(t *testing.T) {
	got := cgroupPathFor("/a/b")
	want := cgroupPathFor("a/b")
	if got != want {
		t.Fatalf("cgroupPathFor(%q) = %q, want same as %q = %q", "/a/b", got, "a/b", want)
	}
}

func TestRegisterAndResolveCgroupPath(t *testing.T) {
	d := newTestDaemon(t)
	d.RegisterCgroupPath("a/b", "porto/a/b")

	d.cgroupNamesMu.Lock()
	name, ok := d.cgroupNames["porto/a/b"]
	d.cgroupNamesMu.Unlock()

	if !ok || name != "a/b" {
		t.Fatalf("expected registered name, got %q, %v", name, ok)
	}

	d.UnregisterCgroupPath("porto/a/b")
	d.cgroupNamesMu.Lock()
	_, ok = d.cgroupNames["porto/a/b"]
	d.cgroupNamesMu.Unlock()
	if ok {
		t.Fatal("expected mapping removed after unregister")
	}
}

func TestPersistWritesNameAndState(t *testing.T) {
	d := newTestDaemon(t)
	c, err := d.Tree.Create("a", tree.Credentials{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := d.persist(c); err != nil {
		t.Fatalf("persist: %v", err)
	}

	rec, err := d.Store.Load(c.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec[store.KeyName] != "a" {
		t.Fatalf("name = %q, want %q", rec[store.KeyName], "a")
	}
	if rec[store.KeyState] != tree.Stopped.String() {
		t.Fatalf("state = %q, want %q", rec[store.KeyState], tree.Stopped.String())
	}
}

func TestApplyReconcileActionForceStopped(t *testing.T) {
	d := newTestDaemon(t)
	c, err := d.Tree.Create("a", tree.Credentials{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c.State = tree.Dead

	d.applyReconcileAction(c, store.ReconcileAction{ForceStopped: true})
	if c.State != tree.Stopped {
		t.Fatalf("state = %v, want Stopped", c.State)
	}
}

func TestResolveReflectsTreeMembership(t *testing.T) {
	d := newTestDaemon(t)
	if d.resolve("nope") {
		t.Fatal("expected resolve to report false for unknown container")
	}
	if _, err := d.Tree.Create("a", tree.Credentials{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !d.resolve("a") {
		t.Fatal("expected resolve to report true for live container")
	}
}
