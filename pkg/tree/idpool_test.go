package tree

import "testing"

func TestIDPoolAllocUnique(t *testing.T) {
	p := NewIDPool(4)
	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		id, err := p.Alloc()
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		if seen[id] {
			t.Fatalf("id %d allocated twice", id)
		}
		seen[id] = true
	}
	if _, err := p.Alloc(); err == nil {
		t.Fatal("expected exhaustion error")
	}
}

func TestIDPoolReleaseThenReuse(t *testing.T) {
	p := NewIDPool(2)
	id1, _ := p.Alloc()
	_, _ = p.Alloc()
	p.Release(id1)
	id3, err := p.Alloc()
	if err != nil {
		t.Fatalf("Alloc after release: %v", err)
	}
	if id3 != id1 {
		t.Errorf("expected reuse of released id %d, got %d", id1, id3)
	}
}

func TestIDPoolReserve(t *testing.T) {
	p := NewIDPool(4)
	if err := p.Reserve(3); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := p.Reserve(3); err == nil {
		t.Fatal("expected error reserving already-used id")
	}
	if err := p.Reserve(99); err == nil {
		t.Fatal("expected error for out-of-range id")
	}
}
