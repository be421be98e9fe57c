package tree

import (
	"testing"

	"github.com/bowlofstew/porto/pkg/perr"
)

func TestApplyDirtyGroupAppliesTogether(t *testing.T) {
	reg := NewRegistry()
	var applied []string
	for _, name := range []string{"cpu_policy", "cpu_limit", "cpu_guarantee"} {
		name := name
		reg.Register(&Descriptor{Name: name, Setter: func(c *Container, value string) error {
			applied = append(applied, name)
			return nil
		}})
	}

	c := newContainer(1, "a", nil)
	c.Properties.Assign("cpu_limit", "100")

	if err := ApplyDirty(c, reg); err != nil {
		t.Fatalf("ApplyDirty: %v", err)
	}
	if len(applied) != 3 {
		t.Fatalf("expected whole group of 3 applied, got %v", applied)
	}
}

func TestApplyDirtyRollsBackOnFailure(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Descriptor{Name: "cpu_policy", Setter: func(c *Container, value string) error {
		return nil
	}})
	reg.Register(&Descriptor{Name: "cpu_limit", Setter: func(c *Container, value string) error {
		return perr.New(perr.Unknown, "boom")
	}})
	reg.Register(&Descriptor{Name: "cpu_guarantee", Setter: func(c *Container, value string) error {
		return nil
	}})

	c := newContainer(1, "a", nil)
	c.Properties.Assign("cpu_limit", "before")
	_ = ApplyDirty(c, reg) // clears dirty bits from the earlier failed attempt's perspective is irrelevant here

	c.Properties.values["cpu_limit"] = "before"
	c.Properties.dirty["cpu_limit"] = true

	if err := ApplyDirty(c, reg); err == nil {
		t.Fatal("expected error from failing setter")
	}
	if v, _ := c.Properties.Get("cpu_limit"); v != "before" {
		t.Errorf("expected rollback to restore %q, got %q", "before", v)
	}
}

func TestApplyDirtyOrderIsDeterministic(t *testing.T) {
	reg := NewRegistry()
	var order []string
	for _, name := range []string{"hostname", "net_prio", "cpu_policy", "cpu_limit", "net_limit"} {
		name := name
		reg.Register(&Descriptor{Name: name, Setter: func(c *Container, value string) error {
			order = append(order, name)
			return nil
		}})
	}

	run := func() []string {
		order = nil
		c := newContainer(1, "a", nil)
		c.Properties.Assign("net_limit", "1")
		c.Properties.Assign("cpu_limit", "1")
		c.Properties.Assign("hostname", "box")
		if err := ApplyDirty(c, reg); err != nil {
			t.Fatalf("ApplyDirty: %v", err)
		}
		got := append([]string{}, order...)
		return got
	}

	first := run()
	for i := 0; i < 10; i++ {
		if got := run(); !equalStrings(got, first) {
			t.Fatalf("ApplyDirty order not deterministic: %v vs %v", got, first)
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSetPropertyRejectsInvalidValue(t *testing.T) {
	reg := NewRegistry()
	setterCalled := false
	reg.Register(&Descriptor{
		Name: "cpu_limit",
		Validate: func(c *Container, value string) error {
			if value == "bogus" {
				return perr.New(perr.InvalidState, "cpu_limit must be numeric")
			}
			return nil
		},
		Setter: func(c *Container, value string) error {
			setterCalled = true
			return nil
		},
	})

	c := newContainer(1, "a", nil)
	c.Properties.Assign("cpu_limit", "100")

	if err := SetProperty(c, reg, "cpu_limit", "bogus"); err == nil {
		t.Fatal("expected validation error for bogus value")
	}
	if setterCalled {
		t.Fatal("setter must not run when Validate rejects the value")
	}
	if v, _ := c.Properties.Get("cpu_limit"); v != "100" {
		t.Errorf("expected value unchanged at %q, got %q", "100", v)
	}
}

func TestSetPropertyRestoresPreAssignmentValueOnApplyFailure(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Descriptor{Name: "cpu_policy", Setter: func(c *Container, value string) error {
		return nil
	}})
	reg.Register(&Descriptor{Name: "cpu_limit", Setter: func(c *Container, value string) error {
		return perr.New(perr.Unknown, "boom")
	}})
	reg.Register(&Descriptor{Name: "cpu_guarantee", Setter: func(c *Container, value string) error {
		return nil
	}})

	c := newContainer(1, "a", nil)
	// cpu_limit's setter always fails, so prime the pre-existing value
	// directly rather than through SetProperty, then mark it already
	// applied (not dirty) as if an earlier, successful call had set it.
	c.Properties.Assign("cpu_limit", "100")
	c.Properties.clearDirty("cpu_limit")

	if err := SetProperty(c, reg, "cpu_limit", "200"); err == nil {
		t.Fatal("expected error from failing setter")
	}
	if v, set := c.Properties.Get("cpu_limit"); v != "100" || !set {
		t.Errorf("expected rollback to pre-assignment value %q, got %q (set=%v)", "100", v, set)
	}
}

func TestSetPropertyRestoresUnsetOnApplyFailureForNeverAssignedProperty(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Descriptor{Name: "cpu_policy", Setter: func(c *Container, value string) error {
		return nil
	}})
	reg.Register(&Descriptor{Name: "cpu_limit", Setter: func(c *Container, value string) error {
		return perr.New(perr.Unknown, "boom")
	}})
	reg.Register(&Descriptor{Name: "cpu_guarantee", Setter: func(c *Container, value string) error {
		return nil
	}})

	c := newContainer(1, "a", nil)

	if err := SetProperty(c, reg, "cpu_limit", "100"); err == nil {
		t.Fatal("expected error from failing setter")
	}
	if v, set := c.Properties.Get("cpu_limit"); set || v != "" {
		t.Errorf("expected cpu_limit to remain unset after rollback, got %q (set=%v)", v, set)
	}
}

func TestApplyDirtyUngroupedProperty(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.Register(&Descriptor{Name: "hostname", Setter: func(c *Container, value string) error {
		called = true
		return nil
	}})

	c := newContainer(1, "a", nil)
	c.Properties.Assign("hostname", "box")

	if err := ApplyDirty(c, reg); err != nil {
		t.Fatalf("ApplyDirty: %v", err)
	}
	if !called {
		t.Fatal("expected ungrouped property setter to be called")
	}
}
