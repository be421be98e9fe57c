package launch

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bowlofstew/porto/pkg/perr"
)

// msgType tags each message exchanged between the daemon and the helper
// over their SOCK_SEQPACKET socket pair, per spec.md §4.3's "Synchronization
// protocol": the helper reports WPid then VPid, the daemon releases the
// workload from its pre-exec barrier with a wakeup, and the helper reports
// the final error (success or typed failure) once the workload either
// execve's or dies trying.
//
// spec.md's prose numbers four exchanges (WPid, VPid, wakeup, error) while
// calling them "exactly three messages"; §4.3's detailed child-side
// ordering additionally names two distinct wakeup gates ("receive wakeup
// #1 ... receive wakeup #2"). This implementation takes the detailed
// ordering as authoritative and sends wakeup twice -- once after the
// helper has reported VPid (releasing the child into its own mount/cgroup/
// capability setup) and once immediately before execve (releasing the
// pre-exec barrier) -- both encoded as the same msgWakeup type, so the
// wire protocol still matches the three message *types* named in the
// summary (report, wakeup, error) even though wakeup is sent twice. See
// DESIGN.md.
type msgType uint8

const (
	msgWPid msgType = iota
	msgVPid
	msgWakeup
	msgError
)

// syncMessage is the fixed-layout payload of one SOCK_SEQPACKET datagram.
type syncMessage struct {
	Type  msgType
	Pid   int32      // valid for msgWPid, msgVPid
	Kind  perr.Kind  // valid for msgError
	Errno int32      // valid for msgError
	Text  string     // valid for msgError
}

// marshal encodes m as a single datagram. SOCK_SEQPACKET preserves message
// boundaries, so no length framing is needed beyond what the kernel already
// guarantees for one write().
func (m syncMessage) marshal() []byte {
	switch m.Type {
	case msgWPid, msgVPid:
		buf := make([]byte, 5)
		buf[0] = byte(m.Type)
		binary.LittleEndian.PutUint32(buf[1:], uint32(m.Pid))
		return buf
	case msgWakeup:
		return []byte{byte(m.Type)}
	case msgError:
		text := []byte(m.Text)
		if len(text) > 4096 {
			text = text[:4096]
		}
		buf := make([]byte, 1+1+4+2+len(text))
		buf[0] = byte(m.Type)
		buf[1] = byte(m.Kind)
		binary.LittleEndian.PutUint32(buf[2:6], uint32(m.Errno))
		binary.LittleEndian.PutUint16(buf[6:8], uint16(len(text)))
		copy(buf[8:], text)
		return buf
	default:
		return []byte{byte(m.Type)}
	}
}

func unmarshalSyncMessage(buf []byte) (syncMessage, error) {
	if len(buf) == 0 {
		return syncMessage{}, fmt.Errorf("empty sync message")
	}
	m := syncMessage{Type: msgType(buf[0])}
	switch m.Type {
	case msgWPid, msgVPid:
		if len(buf) < 5 {
			return syncMessage{}, fmt.Errorf("short pid message")
		}
		m.Pid = int32(binary.LittleEndian.Uint32(buf[1:]))
	case msgWakeup:
	case msgError:
		if len(buf) < 8 {
			return syncMessage{}, fmt.Errorf("short error message")
		}
		m.Kind = perr.Kind(buf[1])
		m.Errno = int32(binary.LittleEndian.Uint32(buf[2:6]))
		n := int(binary.LittleEndian.Uint16(buf[6:8]))
		if len(buf) < 8+n {
			return syncMessage{}, fmt.Errorf("truncated error text")
		}
		m.Text = string(buf[8 : 8+n])
	default:
		return syncMessage{}, fmt.Errorf("unknown sync message type %d", buf[0])
	}
	return m, nil
}

// syncConn is one endpoint of the daemon<->helper SOCK_SEQPACKET socket
// pair.
type syncConn struct {
	f *os.File
}

// newSyncPair creates the socket pair used for the launch protocol. index 0
// is conventionally kept by the daemon, index 1 passed to the helper as an
// inherited fd.
func newSyncPair() (daemonSide, helperSide *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, perr.Wrap(perr.Unknown, err, "socketpair")
	}
	daemonSide = os.NewFile(uintptr(fds[0]), "porto-launch-daemon")
	helperSide = os.NewFile(uintptr(fds[1]), "porto-launch-helper")
	return daemonSide, helperSide, nil
}

func newSyncConn(f *os.File) *syncConn { return &syncConn{f: f} }

func (c *syncConn) send(m syncMessage) error {
	_, err := c.f.Write(m.marshal())
	if err != nil {
		return perr.Wrap(perr.Unknown, err, "sync send %d", m.Type)
	}
	return nil
}

func (c *syncConn) recv() (syncMessage, error) {
	buf := make([]byte, 8192)
	n, err := c.f.Read(buf)
	if n == 0 && (err == nil || err == io.EOF) {
		// os.File reports the peer's close as a zero-length read with
		// io.EOF. Helper exited without sending a final message: treat as an
		// Unknown error carrying the wait-status, per spec.md §9 ("a
		// helper that exits before sending its final error record is
		// treated as having sent Unknown with the wait-status message").
		// The caller is responsible for filling in the wait-status text
		// since only it has waited on the helper's pid.
		return syncMessage{Type: msgError, Kind: perr.Unknown, Text: "helper closed sync channel without reporting"}, nil
	}
	if err != nil {
		return syncMessage{}, perr.Wrap(perr.Unknown, err, "sync recv")
	}
	return unmarshalSyncMessage(buf[:n])
}

func (c *syncConn) sendWPid(pid int) error  { return c.send(syncMessage{Type: msgWPid, Pid: int32(pid)}) }
func (c *syncConn) sendVPid(pid int) error  { return c.send(syncMessage{Type: msgVPid, Pid: int32(pid)}) }
func (c *syncConn) sendWakeup() error       { return c.send(syncMessage{Type: msgWakeup}) }
func (c *syncConn) sendError(err error) error {
	if err == nil {
		return c.send(syncMessage{Type: msgError, Kind: perr.Success})
	}
	if pe, ok := err.(*perr.Error); ok {
		return c.send(syncMessage{Type: msgError, Kind: pe.Kind, Errno: int32(pe.Errno), Text: pe.Msg})
	}
	return c.send(syncMessage{Type: msgError, Kind: perr.Unknown, Text: err.Error()})
}

func (c *syncConn) recvWakeup() error {
	m, err := c.recv()
	if err != nil {
		return err
	}
	if m.Type != msgWakeup {
		return fmt.Errorf("expected wakeup, got %d", m.Type)
	}
	return nil
}

func (c *syncConn) close() { c.f.Close() }
