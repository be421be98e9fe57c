package cleanup

import "testing"

func testCleanupHelper(clean, cleanAdd *bool, release bool) func() {
	cu := Make(func() {
		*clean = true
	})
	cu.Add(func() {
		*cleanAdd = true
	})
	defer cu.Clean()
	if release {
		return cu.Release()
	}
	return nil
}

func TestCleanup(t *testing.T) {
	clean := false
	cleanAdd := false
	testCleanupHelper(&clean, &cleanAdd, false)
	if !clean {
		t.Fatalf("cleanup function was not called")
	}
	if !cleanAdd {
		t.Fatalf("added cleanup function was not called")
	}
}

func TestRelease(t *testing.T) {
	clean := false
	cleanAdd := false
	cleaner := testCleanupHelper(&clean, &cleanAdd, true)

	if clean || cleanAdd {
		t.Fatalf("cleanup ran before release's returned func was called")
	}

	cleaner()
	if !clean {
		t.Fatalf("cleanup function was not called")
	}
	if !cleanAdd {
		t.Fatalf("added cleanup function was not called")
	}
}

func TestReleaseOrdersLIFO(t *testing.T) {
	var order []int
	cu := Make(func() { order = append(order, 1) })
	cu.Add(func() { order = append(order, 2) })
	cu.Add(func() { order = append(order, 3) })

	cleaner := cu.Release()
	cleaner()

	want := []int{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
