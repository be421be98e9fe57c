package store

import (
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	rec := Record{KeyID: "3", KeyName: "a/b", "cpu_limit": "100", KeyState: "running"}
	if err := s.Save(3, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(3)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("round-tripped record differs (-want +got):\n%s", diff)
	}
}

func TestSaveStateKeyWrittenLast(t *testing.T) {
	s := New(t.TempDir())
	rec := Record{KeyName: "a", KeyState: "running", "z_prop": "v"}
	if err := s.Save(1, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	content, err := os.ReadFile(s.path(1))
	if err != nil {
		t.Fatalf("read raw record: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[len(lines)-1], KeyState+"=") {
		t.Fatalf("expected state key last, got lines: %v", lines)
	}
}

func TestLoadMissingRecord(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.Load(42); err == nil {
		t.Fatal("expected error loading nonexistent record")
	}
}

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	for _, v := range []string{"plain", "a=b", "line1\nline2", `back\slash`} {
		if got := unescape(escape(v)); got != v {
			t.Errorf("escape/unescape(%q) = %q", v, got)
		}
	}
}

func TestRemoveDeletesRecord(t *testing.T) {
	s := New(t.TempDir())
	_ = s.Save(5, Record{KeyName: "x", KeyState: "stopped"})
	if err := s.Remove(5); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Load(5); err == nil {
		t.Fatal("expected error after remove")
	}
}
