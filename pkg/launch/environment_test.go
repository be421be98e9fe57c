package launch

import "testing"

func hasEnv(env []string, kv string) bool {
	for _, e := range env {
		if e == kv {
			return true
		}
	}
	return false
}

func TestEnvironmentDistinguishesNameAndHost(t *testing.T) {
	env := environment(nil, "a/b/c", "a-b-c.porto", 0)
	if !hasEnv(env, "PORTO_NAME=a/b/c") {
		t.Errorf("env missing PORTO_NAME, got %v", env)
	}
	if !hasEnv(env, "PORTO_HOST=a-b-c.porto") {
		t.Errorf("env missing PORTO_HOST, got %v", env)
	}
	if !hasEnv(env, "container=lxc") {
		t.Errorf("env missing container=lxc, got %v", env)
	}
}

func TestEnvironmentPopulatesPathHomeUserForUnknownUID(t *testing.T) {
	env := environment(nil, "a", "a", 999999)
	if !hasEnv(env, "HOME=/root") {
		t.Errorf("expected fallback HOME=/root, got %v", env)
	}
	if !hasEnv(env, "USER=root") {
		t.Errorf("expected fallback USER=root, got %v", env)
	}
	found := false
	for _, e := range env {
		if len(e) > 5 && e[:5] == "PATH=" {
			found = true
		}
	}
	if !found {
		t.Error("expected PATH to be set")
	}
}

func TestEnvironmentPreservesUserSuppliedVars(t *testing.T) {
	env := environment([]string{"FOO=bar"}, "a", "a", 0)
	if !hasEnv(env, "FOO=bar") {
		t.Errorf("expected user env preserved, got %v", env)
	}
}
