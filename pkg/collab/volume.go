// Package collab defines the collaborator interfaces the container tree
// calls out to for concerns that live outside a single container's own
// namespaces: root-volume provisioning and network traffic-class/autoconf
// handling. Concrete backends are intentionally out of scope beyond the
// stub loopback network backend provided for tests.
package collab

import "context"

// VolumeSpec describes the root volume a container wants attached as its
// chroot root.
type VolumeSpec struct {
	Backend    string // e.g. "plain", "overlay", "tmpfs"
	Path       string
	SpaceLimit int64
	InodeLimit int64
	ReadOnly   bool
}

// Volume is a provisioned root volume handle.
type Volume struct {
	Path string
}

// VolumeBackend provisions and tears down root volumes. A concrete
// implementation owns whatever on-disk layout its Backend name implies
// (loopback image, overlayfs, tmpfs mount); pkg/tree only ever holds the
// returned Volume's Path.
type VolumeBackend interface {
	Create(ctx context.Context, spec VolumeSpec) (*Volume, error)
	Destroy(ctx context.Context, v *Volume) error
}
