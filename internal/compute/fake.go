package compute

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/campers-dev/campers/internal/runconfig"
)

// Fake is an in-memory Provider used by orchestrator tests; it never makes
// network calls. Built directly off the Provider interface's own contract
// rather than any one reference file, since nothing else ships a
// cloud-provider test double for this shape of interface.
type Fake struct {
	mu        sync.Mutex
	instances map[string]Descriptor
	nextID    int

	LaunchErr    error
	StartErr     error
	StopErr      error
	TerminateErr error
}

// NewFake returns an empty Fake provider.
func NewFake() *Fake {
	return &Fake{instances: make(map[string]Descriptor)}
}

func (f *Fake) ValidateRegion(ctx context.Context, region string) error {
	return nil
}

func (f *Fake) FindInstancesByNameOrID(ctx context.Context, needle, regionFilter string) ([]Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Descriptor
	for _, d := range f.instances {
		if d.InstanceID == needle || d.UniqueID == needle {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		iTerm := out[i].State == StateTerminated
		jTerm := out[j].State == StateTerminated
		if iTerm != jTerm {
			return !iTerm
		}
		return out[i].LaunchTime.After(out[j].LaunchTime)
	})
	return out, nil
}

// ListManaged returns every instance the Fake has ever launched, newest
// first. regionFilter is accepted for interface symmetry and ignored.
func (f *Fake) ListManaged(ctx context.Context, regionFilter string) ([]Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Descriptor, 0, len(f.instances))
	for _, d := range f.instances {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LaunchTime.After(out[j].LaunchTime)
	})
	return out, nil
}

func (f *Fake) Launch(ctx context.Context, cfg *runconfig.RunConfig, instanceName string) (Descriptor, error) {
	if f.LaunchErr != nil {
		return Descriptor{}, f.LaunchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	d := Descriptor{
		InstanceID:   fmt.Sprintf("fake-%d", f.nextID),
		State:        StateRunning,
		PublicIP:     "203.0.113.10",
		PrivateIP:    "10.0.0.10",
		Region:       cfg.Region,
		InstanceType: cfg.InstanceType,
		LaunchTime:   time.Now(),
		UniqueID:     instanceName,
		Reused:       false,
		SSHPort:      22,
	}
	f.instances[d.InstanceID] = d
	return d, nil
}

func (f *Fake) Start(ctx context.Context, instanceID string) (Descriptor, error) {
	if f.StartErr != nil {
		return Descriptor{}, f.StartErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.instances[instanceID]
	if !ok {
		return Descriptor{}, &ProviderAPIError{Message: "instance not found"}
	}
	d.State = StateRunning
	d.Reused = true
	f.instances[instanceID] = d
	return d, nil
}

func (f *Fake) Stop(ctx context.Context, instanceID string) error {
	if f.StopErr != nil {
		return f.StopErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.instances[instanceID]
	if !ok {
		return nil
	}
	d.State = StateStopped
	f.instances[instanceID] = d
	return nil
}

func (f *Fake) Terminate(ctx context.Context, instanceID string) error {
	if f.TerminateErr != nil {
		return f.TerminateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.instances[instanceID]
	if !ok {
		return nil
	}
	d.State = StateTerminated
	f.instances[instanceID] = d
	return nil
}

func (f *Fake) Describe(ctx context.Context, instanceID string) (Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.instances[instanceID]
	if !ok {
		return Descriptor{}, &ProviderAPIError{Message: "instance not found"}
	}
	return d, nil
}

func (f *Fake) GetVolumeSize(ctx context.Context, instanceID string) (int, error) {
	return 20, nil
}

var _ Provider = (*Fake)(nil)
