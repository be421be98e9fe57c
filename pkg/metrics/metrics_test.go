package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bowlofstew/porto/pkg/tree"
)

type fakeCounter struct {
	counts map[tree.State]int
}

func (f fakeCounter) CountByState() map[tree.State]int { return f.counts }

type fakeDepth int

func (f fakeDepth) Len() int { return int(f) }

func TestCollectorReportsContainerCountsAndQueueDepth(t *testing.T) {
	c := NewCollector(fakeCounter{counts: map[tree.State]int{tree.Running: 2, tree.Stopped: 1}}, fakeDepth(3))

	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if out == 0 {
		t.Fatal("expected at least one metric")
	}
}

func TestRecordRespawnIncrementsCounter(t *testing.T) {
	c := NewCollector(fakeCounter{counts: map[tree.State]int{}}, fakeDepth(0))
	c.RecordRespawn("/a/b")
	c.RecordRespawn("/a/b")

	got := testutil.ToFloat64(c.respawns.WithLabelValues("/a/b"))
	if got != 2 {
		t.Fatalf("expected respawn count 2, got %v", got)
	}
}
