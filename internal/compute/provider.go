// Package compute implements the Compute Adapter component (spec.md
// §4.L3): a provider-neutral interface to find, launch, start, stop,
// terminate, and describe compute instances, with an AWS EC2
// implementation (internal/compute/ec2) and a local Docker-backed
// implementation (internal/compute/dockerdev) for development use.
package compute

import (
	"context"
	"time"

	"github.com/campers-dev/campers/internal/runconfig"
)

// State is an InstanceDescriptor's lifecycle state.
type State string

const (
	StatePending    State = "pending"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
	StateTerminated State = "terminated"
)

// Descriptor mirrors spec.md §3's InstanceDescriptor: a mutable snapshot of
// one compute instance's identity and addressing.
type Descriptor struct {
	InstanceID   string
	State        State
	PublicIP     string
	PrivateIP    string
	Region       string
	InstanceType string
	LaunchTime   time.Time
	KeyFile      string
	UniqueID     string
	Reused       bool

	// SSHPort is the port the SSH Transport should connect to. Cloud
	// providers fix this at 22; the local docker provider publishes the
	// container's SSH port to an ephemeral host port and reports it here.
	SSHPort int
}

// Provider is the provider-neutral Compute Adapter interface. Every
// implementation must satisfy all eight operations from spec.md §4.L3.
type Provider interface {
	// ValidateRegion checks that region is a known, usable region. Some
	// providers may not have an authorized catalog call; implementations
	// should log and return nil (no-op success) rather than fail the run
	// in that case.
	ValidateRegion(ctx context.Context, region string) error

	// FindInstancesByNameOrID returns instances matching needle exactly by
	// instance ID or by name tag, newest (by LaunchTime) first, with
	// non-terminated states preferred.
	FindInstancesByNameOrID(ctx context.Context, needle string, regionFilter string) ([]Descriptor, error)

	// ListManaged returns every instance this provider tagged ManagedBy
	// campers, newest first. Backs `campers list` (spec.md §6); not one of
	// the original eight lifecycle operations, but every implementation
	// must still supply it since the CLI has no other enumeration path.
	ListManaged(ctx context.Context, regionFilter string) ([]Descriptor, error)

	// Launch creates a fresh instance per cfg, tagged with instanceName,
	// and returns its descriptor once running with a public IP assigned.
	Launch(ctx context.Context, cfg *runconfig.RunConfig, instanceName string) (Descriptor, error)

	// Start resumes a stopped instance. The returned descriptor's public
	// IP may differ from any previous allocation.
	Start(ctx context.Context, instanceID string) (Descriptor, error)

	// Stop halts a running instance without releasing its resources.
	Stop(ctx context.Context, instanceID string) error

	// Terminate permanently destroys an instance and its resources.
	Terminate(ctx context.Context, instanceID string) error

	// Describe returns the current descriptor for instanceID.
	Describe(ctx context.Context, instanceID string) (Descriptor, error)

	// GetVolumeSize returns the root volume size, in GB, of instanceID.
	GetVolumeSize(ctx context.Context, instanceID string) (int, error)
}
