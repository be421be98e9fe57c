package launch

import "testing"

func TestComputeCapsAmbientMustBeAllowed(t *testing.T) {
	_, err := computeCaps(
		[]string{"CAP_CHOWN"},
		[]string{"CAP_CHOWN", "CAP_NET_ADMIN"},
		[]string{"CAP_NET_ADMIN"},
		CapCheckInput{},
	)
	if err == nil {
		t.Fatal("expected error, CAP_NET_ADMIN not in allowed set")
	}
}

func TestComputeCapsAllowedMustBeInLimit(t *testing.T) {
	_, err := computeCaps(
		[]string{"CAP_SYS_ADMIN"},
		[]string{"CAP_CHOWN"},
		nil,
		CapCheckInput{},
	)
	if err == nil {
		t.Fatal("expected error, CAP_SYS_ADMIN not in limit set")
	}
}

func TestComputeCapsNamespaceEscapeRequiresIsolate(t *testing.T) {
	_, err := computeCaps(
		[]string{"CAP_SYS_ADMIN"},
		[]string{"CAP_SYS_ADMIN"},
		[]string{"CAP_SYS_ADMIN"},
		CapCheckInput{Isolate: false},
	)
	if err == nil {
		t.Fatal("expected error, CAP_SYS_ADMIN ambient requires isolation")
	}

	spec, err := computeCaps(
		[]string{"CAP_SYS_ADMIN"},
		[]string{"CAP_SYS_ADMIN"},
		[]string{"CAP_SYS_ADMIN"},
		CapCheckInput{Isolate: true},
	)
	if err != nil {
		t.Fatalf("unexpected error with isolation: %v", err)
	}
	if len(spec.Ambient) != 1 || spec.Ambient[0] != "CAP_SYS_ADMIN" {
		t.Errorf("got ambient %v, want [CAP_SYS_ADMIN]", spec.Ambient)
	}
}

func TestComputeCapsResourceRequiresMemLimitForNonRoot(t *testing.T) {
	_, err := computeCaps(
		[]string{"CAP_SYS_RESOURCE"},
		[]string{"CAP_SYS_RESOURCE"},
		[]string{"CAP_SYS_RESOURCE"},
		CapCheckInput{OwnerIsRoot: false, AncestorHasMemLimit: false},
	)
	if err == nil {
		t.Fatal("expected error, CAP_SYS_RESOURCE needs a memory limit for non-root owner")
	}

	_, err = computeCaps(
		[]string{"CAP_SYS_RESOURCE"},
		[]string{"CAP_SYS_RESOURCE"},
		[]string{"CAP_SYS_RESOURCE"},
		CapCheckInput{OwnerIsRoot: false, AncestorHasMemLimit: true},
	)
	if err != nil {
		t.Fatalf("unexpected error with ancestor mem limit: %v", err)
	}

	_, err = computeCaps(
		[]string{"CAP_SYS_RESOURCE"},
		[]string{"CAP_SYS_RESOURCE"},
		[]string{"CAP_SYS_RESOURCE"},
		CapCheckInput{OwnerIsRoot: true},
	)
	if err != nil {
		t.Fatalf("unexpected error for root owner: %v", err)
	}
}

func TestComputeCapsOrdinaryAllowed(t *testing.T) {
	spec, err := computeCaps(
		[]string{"CAP_CHOWN", "CAP_KILL"},
		[]string{"CAP_CHOWN", "CAP_KILL", "CAP_NET_ADMIN"},
		[]string{"CAP_CHOWN"},
		CapCheckInput{},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spec.Bounding) != 2 || len(spec.Effective) != 2 || len(spec.Ambient) != 1 {
		t.Errorf("got %+v", spec)
	}
}
