package fsutil

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":                 "/",
		"/a/b/../c":         "/a/c",
		"/a/./b":            "/a/b",
		"/a//b///c":         "/a/b/c",
		"/../../a":          "/a",
		"a/b/../../c":       "c",
		"../a":              "../a",
		"/":                 "/",
	}
	for in, want := range cases {
		if got := NewPath(in).String(); got != want {
			t.Errorf("NewPath(%q).String() = %q, want %q", in, got, want)
		}
	}
}

func TestInner(t *testing.T) {
	prefix := NewPath("/a/b")
	cases := []struct {
		p      string
		want   string
		wantOK bool
	}{
		{"/a/b", "", true},
		{"/a/b/c", "c", true},
		{"/a/b/c/d", "c/d", true},
		{"/a/bc", "", false},
		{"/a", "", false},
		{"/x/y", "", false},
	}
	for _, c := range cases {
		got, ok := prefix.Inner(NewPath(c.p))
		if ok != c.wantOK || got != c.want {
			t.Errorf("Inner(%q) = (%q, %v), want (%q, %v)", c.p, got, ok, c.want, c.wantOK)
		}
	}
}

func TestRootInner(t *testing.T) {
	root := NewPath("/")
	got, ok := root.Inner(NewPath("/a/b"))
	if !ok || got != "a/b" {
		t.Errorf("root.Inner(/a/b) = (%q, %v), want (\"a/b\", true)", got, ok)
	}
}

func TestBaseDir(t *testing.T) {
	p := NewPath("/a/b/c")
	if p.Base() != "c" {
		t.Errorf("Base() = %q, want c", p.Base())
	}
	if p.Dir().String() != "/a/b" {
		t.Errorf("Dir() = %q, want /a/b", p.Dir().String())
	}
	root := NewPath("/")
	if root.Dir().String() != "/" {
		t.Errorf("root.Dir() = %q, want /", root.Dir().String())
	}
}

func TestJoin(t *testing.T) {
	p := NewPath("/a").Join("b", "c")
	if p.String() != "/a/b/c" {
		t.Errorf("Join = %q, want /a/b/c", p.String())
	}
}
