package launch

import (
	"github.com/moby/sys/capability"

	"github.com/bowlofstew/porto/pkg/perr"
)

// namespaceEscapeCaps are capabilities that let their holder affect state
// outside any namespace the holder itself is confined to (device access,
// module loading, raw IO, time, and the ability to grant further
// capabilities). Per spec.md §4.3's capability discipline paragraph, these
// must never be granted in Ambient unless the workload is actually isolated
// into the namespace that would otherwise be escaped.
var namespaceEscapeCaps = map[string]bool{
	"CAP_SYS_MODULE":    true,
	"CAP_SYS_RAWIO":     true,
	"CAP_SYS_PACCT":     true,
	"CAP_SYS_ADMIN":     true,
	"CAP_SYS_BOOT":      true,
	"CAP_SYS_TIME":      true,
	"CAP_MAC_OVERRIDE":  true,
	"CAP_MAC_ADMIN":     true,
	"CAP_SYSLOG":        true,
	"CAP_SETFCAP":       true,
}

// resourceCaps are capabilities that grant elevated resource control and
// therefore require the requesting owner's ancestor chain to carry a memory
// limit, per the same paragraph ("non-root owners must have a memory limit
// along the ancestor chain to receive CAP_SYS_RESOURCE-like capabilities").
var resourceCaps = map[string]bool{
	"CAP_SYS_RESOURCE": true,
	"CAP_SYS_NICE":     true,
}

// CapCheckInput carries the facts computeCaps needs beyond the raw
// requested capability lists.
type CapCheckInput struct {
	Isolate          bool // container runs in its own namespaces
	OwnerIsRoot      bool
	AncestorHasMemLimit bool
}

// computeCaps validates and normalizes a capability request, enforcing
// CapAmbient⊆CapAllowed⊆CapLimit and the namespace-escape / resource-limit
// rules. It returns the CapSpec to hand to the launcher, or a typed error if
// the request violates discipline.
func computeCaps(allowed, limit []string, requestedAmbient []string, in CapCheckInput) (CapSpec, error) {
	allowedSet := toSet(allowed)
	limitSet := toSet(limit)

	for _, c := range allowed {
		if !limitSet[c] {
			return CapSpec{}, perr.New(perr.Permission, "capability %s not in limit set", c)
		}
	}

	ambient := make([]string, 0, len(requestedAmbient))
	for _, c := range requestedAmbient {
		if !allowedSet[c] {
			return CapSpec{}, perr.New(perr.Permission, "capability %s not allowed, cannot be ambient", c)
		}
		if namespaceEscapeCaps[c] && !in.Isolate {
			return CapSpec{}, perr.New(perr.Permission, "capability %s implies namespace escape, refused without isolation", c)
		}
		if resourceCaps[c] && !in.OwnerIsRoot && !in.AncestorHasMemLimit {
			return CapSpec{}, perr.New(perr.Permission, "capability %s requires a memory limit along the ancestor chain for non-root owners", c)
		}
		ambient = append(ambient, c)
	}

	return CapSpec{
		Bounding:  append([]string{}, allowed...),
		Effective: append([]string{}, allowed...),
		Ambient:   ambient,
	}, nil
}

func toSet(caps []string) map[string]bool {
	m := make(map[string]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}

// applyCaps installs the bounding, effective/permitted/inheritable, and
// ambient capability sets on the calling (post-fork, pre-exec) process using
// moby/sys/capability, which wraps the same capset/capget/prctl(PR_CAP_AMBIENT)
// surface runsc's own boot sequence uses for its restricted capability
// set.
func applyCaps(spec CapSpec) error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return perr.Wrap(perr.Unknown, err, "capability.NewPid2")
	}
	if err := caps.Load(); err != nil {
		return perr.Wrap(perr.Unknown, err, "capability.Load")
	}

	bounding := parseCaps(spec.Bounding)
	effective := parseCaps(spec.Effective)
	ambient := parseCaps(spec.Ambient)

	caps.Clear(capability.BOUNDING)
	caps.Set(capability.BOUNDING, bounding...)

	caps.Clear(capability.PERMITTED | capability.EFFECTIVE | capability.INHERITABLE)
	caps.Set(capability.PERMITTED|capability.EFFECTIVE, effective...)
	caps.Set(capability.INHERITABLE, ambient...)

	caps.Clear(capability.AMBIENT)
	caps.Set(capability.AMBIENT, ambient...)

	if err := caps.Apply(capability.CAPS | capability.BOUNDS | capability.AMBS); err != nil {
		return perr.Wrap(perr.Unknown, err, "capability.Apply")
	}
	return nil
}

func parseCaps(names []string) []capability.Cap {
	out := make([]capability.Cap, 0, len(names))
	for _, n := range names {
		if c, ok := capabilityByName[n]; ok {
			out = append(out, c)
		}
	}
	return out
}

var capabilityByName = map[string]capability.Cap{
	"CAP_CHOWN":            capability.CAP_CHOWN,
	"CAP_DAC_OVERRIDE":     capability.CAP_DAC_OVERRIDE,
	"CAP_DAC_READ_SEARCH":  capability.CAP_DAC_READ_SEARCH,
	"CAP_FOWNER":           capability.CAP_FOWNER,
	"CAP_FSETID":           capability.CAP_FSETID,
	"CAP_KILL":             capability.CAP_KILL,
	"CAP_SETGID":           capability.CAP_SETGID,
	"CAP_SETUID":           capability.CAP_SETUID,
	"CAP_SETPCAP":          capability.CAP_SETPCAP,
	"CAP_LINUX_IMMUTABLE":  capability.CAP_LINUX_IMMUTABLE,
	"CAP_NET_BIND_SERVICE": capability.CAP_NET_BIND_SERVICE,
	"CAP_NET_BROADCAST":    capability.CAP_NET_BROADCAST,
	"CAP_NET_ADMIN":        capability.CAP_NET_ADMIN,
	"CAP_NET_RAW":          capability.CAP_NET_RAW,
	"CAP_IPC_LOCK":         capability.CAP_IPC_LOCK,
	"CAP_IPC_OWNER":        capability.CAP_IPC_OWNER,
	"CAP_SYS_MODULE":       capability.CAP_SYS_MODULE,
	"CAP_SYS_RAWIO":        capability.CAP_SYS_RAWIO,
	"CAP_SYS_CHROOT":       capability.CAP_SYS_CHROOT,
	"CAP_SYS_PTRACE":       capability.CAP_SYS_PTRACE,
	"CAP_SYS_PACCT":        capability.CAP_SYS_PACCT,
	"CAP_SYS_ADMIN":        capability.CAP_SYS_ADMIN,
	"CAP_SYS_BOOT":         capability.CAP_SYS_BOOT,
	"CAP_SYS_NICE":         capability.CAP_SYS_NICE,
	"CAP_SYS_RESOURCE":     capability.CAP_SYS_RESOURCE,
	"CAP_SYS_TIME":         capability.CAP_SYS_TIME,
	"CAP_SYS_TTY_CONFIG":   capability.CAP_SYS_TTY_CONFIG,
	"CAP_MKNOD":            capability.CAP_MKNOD,
	"CAP_LEASE":            capability.CAP_LEASE,
	"CAP_AUDIT_WRITE":      capability.CAP_AUDIT_WRITE,
	"CAP_AUDIT_CONTROL":    capability.CAP_AUDIT_CONTROL,
	"CAP_SETFCAP":          capability.CAP_SETFCAP,
	"CAP_MAC_OVERRIDE":     capability.CAP_MAC_OVERRIDE,
	"CAP_MAC_ADMIN":        capability.CAP_MAC_ADMIN,
	"CAP_SYSLOG":           capability.CAP_SYSLOG,
	"CAP_WAKE_ALARM":       capability.CAP_WAKE_ALARM,
	"CAP_BLOCK_SUSPEND":    capability.CAP_BLOCK_SUSPEND,
	"CAP_AUDIT_READ":       capability.CAP_AUDIT_READ,
}
