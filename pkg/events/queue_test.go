package events

import (
	"context"
	"testing"
	"time"

	"github.com/bowlofstew/porto/pkg/clock"
	"github.com/bowlofstew/porto/pkg/perr"
)

func TestPushPopOrdersByDueMs(t *testing.T) {
	clk := clock.NewFake(1000)
	q := New(clk)

	q.Push(Event{Kind: Exit, DueMs: 1000, ContainerName: "late"})
	q.Push(Event{Kind: Exit, DueMs: 900, ContainerName: "early"})

	_, ev, ok := q.Pop()
	if !ok || ev.ContainerName != "early" {
		t.Fatalf("expected early event first, got %+v ok=%v", ev, ok)
	}
}

func TestPopBlocksUntilDue(t *testing.T) {
	clk := clock.NewFake(1000)
	q := New(clk)
	q.Push(Event{Kind: RotateLogs, DueMs: 2000})

	done := make(chan Event, 1)
	go func() {
		_, ev, _ := q.Pop()
		done <- ev
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before due time")
	case <-time.After(50 * time.Millisecond):
	}

	clk.Advance(1000 * time.Millisecond)

	select {
	case ev := <-done:
		if ev.Kind != RotateLogs {
			t.Errorf("got %v, want RotateLogs", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after clock advanced")
	}
}

func TestCancelRemovesPendingEvent(t *testing.T) {
	clk := clock.NewFake(1000)
	q := New(clk)
	id := q.Push(Event{Kind: Exit, DueMs: 900})

	if !q.Cancel(id) {
		t.Fatal("expected Cancel to succeed")
	}
	if q.Cancel(id) {
		t.Fatal("expected second Cancel to report already gone")
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
}

func TestPoolDropsEventForDestroyedContainer(t *testing.T) {
	clk := clock.NewFake(1000)
	q := New(clk)
	called := false
	pool := NewPool(q, clk, func(name string) bool { return false }, map[Kind]Handler{
		Exit: func(ctx context.Context, ev Event) error { called = true; return nil },
	})

	q.Push(Event{Kind: Exit, DueMs: 900, ContainerName: "gone"})
	_, ev, ok := q.Pop()
	if !ok {
		t.Fatal("expected pop to succeed")
	}
	if pool.resolve(ev.ContainerName) {
		t.Fatal("resolver should report container gone")
	}
	if called {
		t.Fatal("handler should not have been invoked")
	}
}

func TestPoolRequeuesOnBusy(t *testing.T) {
	clk := clock.NewFake(1000)
	q := New(clk)
	attempts := 0
	pool := NewPool(q, clk, func(name string) bool { return true }, map[Kind]Handler{
		Exit: func(ctx context.Context, ev Event) error {
			attempts++
			if attempts == 1 {
				return perr.New(perr.Busy, "locked")
			}
			return nil
		},
	})

	q.Push(Event{Kind: Exit, DueMs: 900, ContainerName: "busy"})
	_, ev, ok := q.Pop()
	if !ok {
		t.Fatal("expected pop to succeed")
	}
	pool.dispatch(context.Background(), 1, ev)
	if q.Len() != 1 {
		t.Fatalf("expected requeue after Busy, Len = %d", q.Len())
	}
}
