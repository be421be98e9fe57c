package launch

import (
	"testing"

	"github.com/bowlofstew/porto/pkg/perr"
)

func TestMarshalRoundTripPid(t *testing.T) {
	for _, m := range []syncMessage{
		{Type: msgWPid, Pid: 1234},
		{Type: msgVPid, Pid: 5},
	} {
		got, err := unmarshalSyncMessage(m.marshal())
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got != m {
			t.Errorf("round trip = %+v, want %+v", got, m)
		}
	}
}

func TestMarshalRoundTripWakeup(t *testing.T) {
	m := syncMessage{Type: msgWakeup}
	got, err := unmarshalSyncMessage(m.marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != msgWakeup {
		t.Errorf("got type %d, want msgWakeup", got.Type)
	}
}

func TestMarshalRoundTripError(t *testing.T) {
	m := syncMessage{Type: msgError, Kind: perr.ContainerDoesNotExist, Errno: 2, Text: "no such container"}
	got, err := unmarshalSyncMessage(m.marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != m {
		t.Errorf("round trip = %+v, want %+v", got, m)
	}
}

func TestMarshalErrorTextTruncated(t *testing.T) {
	big := make([]byte, 5000)
	for i := range big {
		big[i] = 'x'
	}
	m := syncMessage{Type: msgError, Text: string(big)}
	buf := m.marshal()
	got, err := unmarshalSyncMessage(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Text) != 4096 {
		t.Errorf("got text len %d, want 4096", len(got.Text))
	}
}

func TestUnmarshalEmptyRejected(t *testing.T) {
	if _, err := unmarshalSyncMessage(nil); err == nil {
		t.Fatal("expected error for empty buffer")
	}
}

func TestUnmarshalTruncatedPidRejected(t *testing.T) {
	if _, err := unmarshalSyncMessage([]byte{byte(msgWPid), 1, 2}); err == nil {
		t.Fatal("expected error for truncated pid message")
	}
}

func TestSyncConnSendRecv(t *testing.T) {
	a, b, err := newSyncPair()
	if err != nil {
		t.Fatalf("newSyncPair: %v", err)
	}
	defer a.Close()
	defer b.Close()

	ca, cb := newSyncConn(a), newSyncConn(b)
	if err := ca.sendWPid(42); err != nil {
		t.Fatalf("sendWPid: %v", err)
	}
	got, err := cb.recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if got.Type != msgWPid || got.Pid != 42 {
		t.Errorf("got %+v, want WPid=42", got)
	}
}

func TestSyncConnRecvOnClose(t *testing.T) {
	a, b, err := newSyncPair()
	if err != nil {
		t.Fatalf("newSyncPair: %v", err)
	}
	defer b.Close()
	a.Close()

	cb := newSyncConn(b)
	got, err := cb.recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if got.Type != msgError || got.Kind != perr.Unknown {
		t.Errorf("got %+v, want synthesized Unknown error on close", got)
	}
}

func TestRecvWakeupRejectsWrongType(t *testing.T) {
	a, b, err := newSyncPair()
	if err != nil {
		t.Fatalf("newSyncPair: %v", err)
	}
	defer a.Close()
	defer b.Close()

	ca, cb := newSyncConn(a), newSyncConn(b)
	if err := ca.sendWPid(1); err != nil {
		t.Fatalf("sendWPid: %v", err)
	}
	if err := cb.recvWakeup(); err == nil {
		t.Fatal("expected error when wakeup expected but pid message received")
	}
}
