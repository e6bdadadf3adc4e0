package sandbox

import (
	"context"
)

// Limits are fixed platform defaults applied to every sandbox.
type Limits struct {
	MemoryBytes     int64
	MemorySwapBytes int64 // equal to MemoryBytes: no swap
	CPUPeriod       int64 // microseconds
	CPUQuota        int64 // microseconds per period
	PidsLimit       int64
}

func DefaultLimits() Limits {
	return Limits{
		MemoryBytes:     128 * 1024 * 1024,
		MemorySwapBytes: 128 * 1024 * 1024,
		CPUPeriod:       100000,
		CPUQuota:        50000,
		PidsLimit:       64,
	}
}

// Spec describes one execution unit.
type Spec struct {
	Name      string
	Image     string
	Cmd       []string
	HostDir   string // workspace on the host, mounted read-write
	MountPath string
	Limits    Limits
}

// Provider is the contract the engine needs from an isolation backend.
// Wait must return when the unit exits or ctx is done, whichever is first.
type Provider interface {
	Create(ctx context.Context, spec Spec) (string, error)
	Start(ctx context.Context, id string) error
	Wait(ctx context.Context, id string) (int64, error)
	Kill(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	EnsureImage(ctx context.Context, image string) error
}
