package cgroup

import "testing"

func TestResolvePathAllOwn(t *testing.T) {
	got := ResolvePath("porto", []string{"a", "b", "c"}, []LevelMode{Own, Own, Own})
	want := "porto/a/b/c"
	if got != want {
		t.Errorf("ResolvePath = %q, want %q", got, want)
	}
}

func TestResolvePathFlatten(t *testing.T) {
	// "b" has no cgroup of its own for this controller; it flattens into "a".
	got := ResolvePath("porto", []string{"a", "b", "c"}, []LevelMode{Own, Flatten, Own})
	want := "porto/a%b/c"
	if got != want {
		t.Errorf("ResolvePath = %q, want %q", got, want)
	}
}

func TestResolvePathAllFlattenAfterRoot(t *testing.T) {
	got := ResolvePath("porto", []string{"a", "b", "c"}, []LevelMode{Own, Flatten, Flatten})
	want := "porto/a%b%c"
	if got != want {
		t.Errorf("ResolvePath = %q, want %q", got, want)
	}
}
