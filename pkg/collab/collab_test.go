package collab

import "testing"

var (
	_ NetworkBackend = LoopbackBackend{}
)

func TestNetworkSpecZeroValueDisablesAutoconfWait(t *testing.T) {
	var spec NetworkSpec
	if spec.AutoconfWait != 0 {
		t.Fatalf("expected zero-value AutoconfWait to disable waiting, got %v", spec.AutoconfWait)
	}
}
