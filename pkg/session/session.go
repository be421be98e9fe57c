package session

import (
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bowlofstew/porto/pkg/cgroup"
	"github.com/bowlofstew/porto/pkg/perr"
	"github.com/bowlofstew/porto/pkg/tree"
)

// PeerCred is the (pid, uid, gid) a Unix-socket peer presented via
// SO_PEERCRED, per spec.md §6.
type PeerCred struct {
	Pid int32
	UID uint32
	GID uint32
}

// PeerCredFromConn reads SO_PEERCRED off a *net.UnixConn's underlying fd.
func PeerCredFromConn(conn *net.UnixConn) (PeerCred, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return PeerCred{}, perr.Wrap(perr.Unknown, err, "syscall conn")
	}
	var cred *unix.Ucred
	var ctrlErr error
	err = raw.Control(func(fd uintptr) {
		cred, ctrlErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return PeerCred{}, perr.Wrap(perr.Unknown, err, "control fd for SO_PEERCRED")
	}
	if ctrlErr != nil {
		return PeerCred{}, perr.Wrap(perr.Unknown, ctrlErr, "getsockopt SO_PEERCRED")
	}
	return PeerCred{Pid: cred.Pid, UID: cred.Uid, GID: cred.Gid}, nil
}

// ContainerOf finds the container that owns peerPid by reading its freezer
// cgroup and resolving that cgroup path back to a container name, per
// spec.md §6 ("the caller's containerized identity is found by reading
// its freezer cgroup"). nameForCgroupPath is injected so this package does
// not need to know the tree's naming convention (the daemon supplies a
// lookup over the freezer paths it registered for each container).
func ContainerOf(peerPid int, nameForCgroupPath func(cgroupPath string) (string, error)) (string, error) {
	path, err := cgroup.TaskCgroup(peerPid, cgroup.Freezer)
	if err != nil {
		return "", err
	}
	return nameForCgroupPath(path)
}

// Session is one client connection's state, per spec.md's "Client
// session" entity.
type Session struct {
	mu sync.Mutex

	Transport Transport
	Cred      PeerCred

	ClientContainer string // discovered via freezer cgroup
	Namespace       string // Porto namespace this client operates in

	AccessLevel tree.AccessLevel

	lockedContainer *tree.Container
	processing      bool
}

// NewSession wraps a connected Transport once the peer's identity has been
// resolved.
func NewSession(t Transport, cred PeerCred, clientContainer, namespace string, level tree.AccessLevel) *Session {
	return &Session{
		Transport:       t,
		Cred:            cred,
		ClientContainer: clientContainer,
		Namespace:       namespace,
		AccessLevel:     level,
	}
}

// BeginRequest marks the session as processing one request, refusing a
// second concurrent request on the same session per spec.md §5's ordering
// guarantee ("a client's processing flag is set while any request is in
// flight").
func (s *Session) BeginRequest() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return perr.New(perr.Busy, "session already has a request in flight")
	}
	s.processing = true
	return nil
}

// EndRequest clears the processing flag.
func (s *Session) EndRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
}

// SetLockedContainer and LockedContainer track which container (if any)
// this session currently holds locked, so a client disconnect can release
// it.
func (s *Session) SetLockedContainer(c *tree.Container) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockedContainer = c
}

func (s *Session) LockedContainer() *tree.Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lockedContainer
}

// Resolve resolves a client-supplied name against this session's
// namespace and container identity.
func (s *Session) Resolve(name string) (string, error) {
	return Resolve(name, s.Namespace, s.ClientContainer)
}
