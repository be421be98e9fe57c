package store

import "testing"

func TestRestoreAllOrdersParentsBeforeChildren(t *testing.T) {
	s := New(t.TempDir())
	_ = s.Save(1, Record{KeyName: "a/b/c", KeyState: "stopped"})
	_ = s.Save(2, Record{KeyName: "/", KeyState: "stopped"})
	_ = s.Save(3, Record{KeyName: "a", KeyState: "stopped"})
	_ = s.Save(4, Record{KeyName: "a/b", KeyState: "stopped"})

	got, err := s.RestoreAll()
	if err != nil {
		t.Fatalf("RestoreAll: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d records, want 4", len(got))
	}
	var names []string
	for _, r := range got {
		names = append(names, r.Record[KeyName])
	}
	want := []string{"/", "a", "a/b", "a/b/c"}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("position %d: got %q, want %q (order %v)", i, names[i], n, names)
		}
	}
}

func TestReconcileForceStoppedWhenFreezerGone(t *testing.T) {
	act := Reconcile(ReconcileInput{State: "running", FreezerExists: false})
	if !act.ForceStopped {
		t.Fatal("expected ForceStopped when freezer cgroup is gone")
	}
}

func TestReconcileMetaContainerNoOp(t *testing.T) {
	act := Reconcile(ReconcileInput{State: "meta", FreezerExists: true, WaitTaskPid: 0, Isolate: false})
	if act != (ReconcileAction{}) {
		t.Fatalf("expected no-op for meta container, got %+v", act)
	}
}

func TestReconcileReapsOnWrongParent(t *testing.T) {
	act := Reconcile(ReconcileInput{
		State: "running", FreezerExists: true, WaitTaskPid: 10,
		TaskExists: true, TaskPPid: 999, DaemonPid: 1,
	})
	if !act.Reap {
		t.Fatal("expected Reap on ppid mismatch")
	}
}

func TestReconcileZombieDropsTaskPid(t *testing.T) {
	act := Reconcile(ReconcileInput{
		State: "running", FreezerExists: true, WaitTaskPid: 10,
		TaskExists: true, TaskPPid: 1, DaemonPid: 1, TaskIsZombie: true,
	})
	if !act.DropTaskPid {
		t.Fatal("expected DropTaskPid for zombie task")
	}
}

func TestReconcileWrongFreezerKillsAndReaps(t *testing.T) {
	act := Reconcile(ReconcileInput{
		State: "running", FreezerExists: true, WaitTaskPid: 10,
		TaskExists: true, TaskPPid: 1, DaemonPid: 1,
		TaskFreezerCg: "porto/a", WantFreezerCg: "porto/b",
	})
	if !act.KillAndReap {
		t.Fatal("expected KillAndReap on freezer cgroup mismatch")
	}
}
