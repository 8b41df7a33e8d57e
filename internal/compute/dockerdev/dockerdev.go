// Package dockerdev implements the Compute Adapter (spec.md §4.L3) against
// a local Docker daemon: a long-lived, SSH-enabled container stands in for
// a cloud compute instance. Useful for developing and testing campers
// without a cloud account. Grounded on the Docker client wrapper in
// _teacher_ref/shared_docker/client.go (NewClient's FromEnv+ping+
// AutoDockerHost fallback, EnsureNetwork, ContainerByLabels, CreateContainer
// /StartContainer, HostPortFor), re-implemented directly against
// github.com/docker/docker rather than carried as its own internal module
// dependency.
package dockerdev

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/campers-dev/campers/internal/compute"
	"github.com/campers-dev/campers/internal/runconfig"
)

const (
	labelManagedBy = "dev.campers.managed-by"
	labelCampName  = "dev.campers.camp-name"
	managedByValue = "campers"

	defaultImage   = "campers/devbox:latest"
	containerSSH   = 22
	pingTimeout    = 2 * time.Second
	startupTimeout = 30 * time.Second
)

// Adapter implements compute.Provider by driving containers on a local
// Docker daemon as stand-ins for cloud instances.
type Adapter struct {
	api   *client.Client
	Image string
}

// New connects to the local Docker daemon using the standard
// DOCKER_HOST/environment resolution.
func New(ctx context.Context) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &compute.ProviderCredentialsError{Message: err.Error(), Err: err}
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		_ = cli.Close()
		return nil, &compute.ProviderCredentialsError{Message: "docker daemon unreachable: " + err.Error(), Err: err}
	}
	return &Adapter{api: cli, Image: defaultImage}, nil
}

func (a *Adapter) ValidateRegion(ctx context.Context, region string) error {
	return nil // regions are meaningless for the local docker provider
}

func (a *Adapter) FindInstancesByNameOrID(ctx context.Context, needle, regionFilter string) ([]compute.Descriptor, error) {
	var out []compute.Descriptor

	if byID, err := a.Describe(ctx, needle); err == nil {
		out = append(out, byID)
	}

	args := filters.NewArgs()
	args.Add("label", "dev.campers.name="+needle)
	args.Add("label", labelManagedBy+"="+managedByValue)
	list, err := a.api.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, wrapDockerErr(err)
	}
	for _, c := range list {
		desc, err := a.Describe(ctx, c.ID)
		if err == nil {
			out = append(out, desc)
		}
	}

	seen := make(map[string]bool)
	var deduped []compute.Descriptor
	for _, d := range out {
		if seen[d.InstanceID] {
			continue
		}
		seen[d.InstanceID] = true
		deduped = append(deduped, d)
	}
	sort.SliceStable(deduped, func(i, j int) bool {
		iTerm := deduped[i].State == compute.StateTerminated
		jTerm := deduped[j].State == compute.StateTerminated
		if iTerm != jTerm {
			return !iTerm
		}
		return deduped[i].LaunchTime.After(deduped[j].LaunchTime)
	})
	return deduped, nil
}

// ListManaged enumerates every container labeled dev.campers.managed-by,
// newest first. regionFilter has no meaning for the local provider and is
// ignored.
func (a *Adapter) ListManaged(ctx context.Context, regionFilter string) ([]compute.Descriptor, error) {
	args := filters.NewArgs()
	args.Add("label", labelManagedBy+"="+managedByValue)
	list, err := a.api.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, wrapDockerErr(err)
	}
	var out []compute.Descriptor
	for _, c := range list {
		if desc, err := a.Describe(ctx, c.ID); err == nil {
			out = append(out, desc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LaunchTime.After(out[j].LaunchTime)
	})
	return out, nil
}

func (a *Adapter) Launch(ctx context.Context, cfg *runconfig.RunConfig, instanceName string) (compute.Descriptor, error) {
	image := a.Image
	if image == "" {
		image = defaultImage
	}

	exposedPort := nat.Port(fmt.Sprintf("%d/tcp", containerSSH))
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			exposedPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: ""}},
		},
		Resources: container.Resources{},
	}
	containerConfig := &container.Config{
		Image: image,
		Labels: map[string]string{
			labelManagedBy: managedByValue,
			labelCampName:  cfg.CampName,
			"dev.campers.name": instanceName,
		},
		ExposedPorts: nat.PortSet{exposedPort: struct{}{}},
	}

	resp, err := a.api.ContainerCreate(ctx, containerConfig, hostConfig, &network.NetworkingConfig{}, nil, instanceName)
	if err != nil {
		return compute.Descriptor{}, wrapDockerErr(err)
	}
	if err := a.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return compute.Descriptor{}, wrapDockerErr(err)
	}

	desc, err := a.waitRunning(ctx, resp.ID)
	if err != nil {
		return compute.Descriptor{}, err
	}
	desc.Region = cfg.Region
	desc.InstanceType = cfg.InstanceType
	desc.UniqueID = instanceName
	desc.Reused = false
	return desc, nil
}

func (a *Adapter) waitRunning(ctx context.Context, containerID string) (compute.Descriptor, error) {
	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		desc, err := a.Describe(ctx, containerID)
		if err != nil {
			return compute.Descriptor{}, err
		}
		if desc.State == compute.StateRunning && desc.PublicIP != "" {
			return desc, nil
		}
		select {
		case <-ctx.Done():
			return compute.Descriptor{}, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return compute.Descriptor{}, &compute.ProviderTimeout{Operation: "container running with published SSH port"}
}

func (a *Adapter) Start(ctx context.Context, instanceID string) (compute.Descriptor, error) {
	if err := a.api.ContainerStart(ctx, instanceID, container.StartOptions{}); err != nil {
		return compute.Descriptor{}, wrapDockerErr(err)
	}
	desc, err := a.waitRunning(ctx, instanceID)
	if err != nil {
		return compute.Descriptor{}, err
	}
	desc.Reused = true
	return desc, nil
}

func (a *Adapter) Stop(ctx context.Context, instanceID string) error {
	timeoutSec := 10
	if err := a.api.ContainerStop(ctx, instanceID, container.StopOptions{Timeout: &timeoutSec}); err != nil {
		return wrapDockerErr(err)
	}
	return nil
}

func (a *Adapter) Terminate(ctx context.Context, instanceID string) error {
	if err := a.api.ContainerRemove(ctx, instanceID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		return wrapDockerErr(err)
	}
	return nil
}

func (a *Adapter) Describe(ctx context.Context, instanceID string) (compute.Descriptor, error) {
	info, err := a.api.ContainerInspect(ctx, instanceID)
	if err != nil {
		return compute.Descriptor{}, wrapDockerErr(err)
	}

	desc := compute.Descriptor{
		InstanceID: info.ID,
		State:      stateFromDocker(info.State),
		PrivateIP:  "127.0.0.1",
	}
	if info.Created != "" {
		if t, err := time.Parse(time.RFC3339Nano, info.Created); err == nil {
			desc.LaunchTime = t
		}
	}
	if info.NetworkSettings != nil {
		key := nat.Port(fmt.Sprintf("%d/tcp", containerSSH))
		if bindings, ok := info.NetworkSettings.Ports[key]; ok {
			for _, b := range bindings {
				if strings.TrimSpace(b.HostPort) != "" {
					desc.PublicIP = "127.0.0.1"
					if port, err := parsePort(b.HostPort); err == nil {
						desc.SSHPort = port
					}
					break
				}
			}
		}
	}
	return desc, nil
}

func (a *Adapter) GetVolumeSize(ctx context.Context, instanceID string) (int, error) {
	return 0, nil // local containers have no fixed root volume size concept
}

func stateFromDocker(s *container.State) compute.State {
	if s == nil {
		return compute.StatePending
	}
	switch {
	case s.Running:
		return compute.StateRunning
	case s.Status == "exited":
		return compute.StateStopped
	case s.Status == "removing" || s.Status == "dead":
		return compute.StateTerminated
	default:
		return compute.StatePending
	}
}

func parsePort(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func wrapDockerErr(err error) error {
	if client.IsErrNotFound(err) {
		return &compute.ProviderAPIError{Code: "NotFound", Message: err.Error(), Err: err}
	}
	return &compute.ProviderAPIError{Message: err.Error(), Err: err}
}

var _ compute.Provider = (*Adapter)(nil)
