// Package ec2 implements the Compute Adapter (spec.md §4.L3) against AWS
// EC2. Credential and region resolution follow the AWS SDK default chain,
// grounded on quarry's lode/client_s3.go NewLodeS3Client idiom
// (config.LoadDefaultConfig with WithRegion); instance lifecycle shape
// (tag-based discovery, RunInstances, waiters) is grounded on the
// Reflow ec2cluster example, translated from aws-sdk-go v1's ec2iface to
// the pack's aws-sdk-go-v2 dependency.
package ec2

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	smithy "github.com/aws/smithy-go"

	"github.com/campers-dev/campers/internal/compute"
	"github.com/campers-dev/campers/internal/runconfig"
)

const (
	managedByTag = "campers"
	sshPort      = 22

	launchPollInterval = 3 * time.Second
	launchMaxAttempts  = 60 // ~3 minutes
)

// API is the subset of the EC2 client surface the adapter needs, so tests
// can substitute a fake without a live AWS account.
type API interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	RunInstances(ctx context.Context, in *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	StartInstances(ctx context.Context, in *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, in *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DescribeVolumes(ctx context.Context, in *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeRegions(ctx context.Context, in *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
	DescribeKeyPairs(ctx context.Context, in *ec2.DescribeKeyPairsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error)
	ImportKeyPair(ctx context.Context, in *ec2.ImportKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.ImportKeyPairOutput, error)
	DescribeSecurityGroups(ctx context.Context, in *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	CreateSecurityGroup(ctx context.Context, in *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	DescribeImages(ctx context.Context, in *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
}

// Adapter implements compute.Provider against a live EC2 API.
type Adapter struct {
	client API
	// PublicKeyMaterial is the OpenSSH public key imported as the EC2 key
	// pair used to launch instances; the matching private key lives at the
	// path returned in Descriptor.KeyFile.
	PublicKeyMaterial []byte
	KeyName           string
	PrivateKeyPath    string
	AMI               string
}

// New resolves AWS credentials and region via the SDK default chain
// (environment, shared config, IAM role) and returns an Adapter bound to
// that region.
func New(ctx context.Context, region string) (*Adapter, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &compute.ProviderCredentialsError{Message: err.Error(), Err: err}
	}
	return &Adapter{client: ec2.NewFromConfig(cfg)}, nil
}

func (a *Adapter) ValidateRegion(ctx context.Context, region string) error {
	_, err := a.client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		RegionNames: []string{region},
	})
	if err != nil {
		if isUnauthorized(err) {
			return nil // degrade to no-op per spec.md §4.L3
		}
		return wrapAPIError(err)
	}
	return nil
}

func (a *Adapter) FindInstancesByNameOrID(ctx context.Context, needle, regionFilter string) ([]compute.Descriptor, error) {
	in := &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: awssdk.String("tag:Name"), Values: []string{needle}},
		},
	}
	out, err := a.client.DescribeInstances(ctx, in)
	if err != nil {
		return nil, wrapAPIError(err)
	}

	var byName []compute.Descriptor
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			byName = append(byName, descriptorFromInstance(inst))
		}
	}

	byID, err := a.describeByID(ctx, needle)
	if err == nil {
		byName = append(byName, byID...)
	}

	seen := make(map[string]bool)
	var merged []compute.Descriptor
	for _, d := range byName {
		if seen[d.InstanceID] {
			continue
		}
		seen[d.InstanceID] = true
		merged = append(merged, d)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		iTerm := merged[i].State == compute.StateTerminated
		jTerm := merged[j].State == compute.StateTerminated
		if iTerm != jTerm {
			return !iTerm
		}
		return merged[i].LaunchTime.After(merged[j].LaunchTime)
	})
	return merged, nil
}

// ListManaged enumerates every instance tagged ManagedBy=campers,
// newest-by-launch-time first. regionFilter is accepted for interface
// symmetry; the adapter is already bound to one region at construction.
func (a *Adapter) ListManaged(ctx context.Context, regionFilter string) ([]compute.Descriptor, error) {
	out, err := a.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: awssdk.String("tag:ManagedBy"), Values: []string{managedByTag}},
		},
	})
	if err != nil {
		return nil, wrapAPIError(err)
	}
	var out2 []compute.Descriptor
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			out2 = append(out2, descriptorFromInstance(inst))
		}
	}
	sort.SliceStable(out2, func(i, j int) bool {
		return out2[i].LaunchTime.After(out2[j].LaunchTime)
	})
	return out2, nil
}

func (a *Adapter) describeByID(ctx context.Context, instanceID string) ([]compute.Descriptor, error) {
	out, err := a.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, wrapAPIError(err)
	}
	var out2 []compute.Descriptor
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			out2 = append(out2, descriptorFromInstance(inst))
		}
	}
	return out2, nil
}

func (a *Adapter) Launch(ctx context.Context, cfg *runconfig.RunConfig, instanceName string) (compute.Descriptor, error) {
	sgID, err := a.ensureSecurityGroup(ctx, instanceName, cfg)
	if err != nil {
		return compute.Descriptor{}, err
	}
	keyName, err := a.ensureKeyPair(ctx, instanceName)
	if err != nil {
		return compute.Descriptor{}, err
	}

	in := &ec2.RunInstancesInput{
		ImageId:          awssdk.String(a.AMI),
		InstanceType:     types.InstanceType(cfg.InstanceType),
		MinCount:         awssdk.Int32(1),
		MaxCount:         awssdk.Int32(1),
		KeyName:          awssdk.String(keyName),
		SecurityGroupIds: []string{sgID},
		BlockDeviceMappings: []types.BlockDeviceMapping{
			{
				DeviceName: awssdk.String("/dev/sda1"),
				Ebs: &types.EbsBlockDevice{
					VolumeSize: awssdk.Int32(int32(cfg.DiskSizeGB)),
				},
			},
		},
		TagSpecifications: []types.TagSpecification{
			{
				ResourceType: types.ResourceTypeInstance,
				Tags: []types.Tag{
					{Key: awssdk.String("Name"), Value: awssdk.String(instanceName)},
					{Key: awssdk.String("CampName"), Value: awssdk.String(cfg.CampName)},
					{Key: awssdk.String("ManagedBy"), Value: awssdk.String(managedByTag)},
				},
			},
		},
	}

	out, err := a.client.RunInstances(ctx, in)
	if err != nil {
		return compute.Descriptor{}, wrapAPIError(err)
	}
	if len(out.Instances) == 0 {
		return compute.Descriptor{}, &compute.ProviderAPIError{Message: "RunInstances returned no instances"}
	}
	instanceID := awssdk.ToString(out.Instances[0].InstanceId)

	desc, err := a.waitRunningWithPublicIP(ctx, instanceID)
	if err != nil {
		return compute.Descriptor{}, err
	}
	desc.Region = cfg.Region
	desc.InstanceType = cfg.InstanceType
	desc.UniqueID = instanceName
	desc.Reused = false
	return desc, nil
}

func (a *Adapter) waitRunningWithPublicIP(ctx context.Context, instanceID string) (compute.Descriptor, error) {
	for attempt := 0; attempt < launchMaxAttempts; attempt++ {
		desc, err := a.Describe(ctx, instanceID)
		if err != nil {
			return compute.Descriptor{}, err
		}
		if desc.State == compute.StateRunning && desc.PublicIP != "" {
			return desc, nil
		}
		select {
		case <-ctx.Done():
			return compute.Descriptor{}, ctx.Err()
		case <-time.After(launchPollInterval):
		}
	}
	return compute.Descriptor{}, &compute.ProviderTimeout{Operation: "instance running with public IP"}
}

func (a *Adapter) Start(ctx context.Context, instanceID string) (compute.Descriptor, error) {
	_, err := a.client.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{instanceID}})
	if err != nil {
		return compute.Descriptor{}, wrapAPIError(err)
	}
	desc, err := a.waitRunningWithPublicIP(ctx, instanceID)
	if err != nil {
		return compute.Descriptor{}, err
	}
	desc.Reused = true
	return desc, nil
}

func (a *Adapter) Stop(ctx context.Context, instanceID string) error {
	_, err := a.client.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{instanceID}})
	if err != nil {
		return wrapAPIError(err)
	}
	return nil
}

func (a *Adapter) Terminate(ctx context.Context, instanceID string) error {
	_, err := a.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{instanceID}})
	if err != nil {
		return wrapAPIError(err)
	}
	return nil
}

func (a *Adapter) Describe(ctx context.Context, instanceID string) (compute.Descriptor, error) {
	out, err := a.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}})
	if err != nil {
		return compute.Descriptor{}, wrapAPIError(err)
	}
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			return descriptorFromInstance(inst), nil
		}
	}
	return compute.Descriptor{}, &compute.ProviderAPIError{Message: fmt.Sprintf("instance %s not found", instanceID)}
}

func (a *Adapter) GetVolumeSize(ctx context.Context, instanceID string) (int, error) {
	desc, err := a.Describe(ctx, instanceID)
	if err != nil {
		return 0, err
	}
	out, err := a.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{desc.InstanceID}})
	if err != nil {
		return 0, wrapAPIError(err)
	}
	var volumeIDs []string
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			for _, bd := range inst.BlockDeviceMappings {
				if bd.Ebs != nil && bd.Ebs.VolumeId != nil {
					volumeIDs = append(volumeIDs, *bd.Ebs.VolumeId)
				}
			}
		}
	}
	if len(volumeIDs) == 0 {
		return 0, &compute.ProviderAPIError{Message: "no root volume found"}
	}
	volOut, err := a.client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: volumeIDs[:1]})
	if err != nil {
		return 0, wrapAPIError(err)
	}
	if len(volOut.Volumes) == 0 || volOut.Volumes[0].Size == nil {
		return 0, &compute.ProviderAPIError{Message: "volume size unavailable"}
	}
	return int(*volOut.Volumes[0].Size), nil
}

func descriptorFromInstance(inst types.Instance) compute.Descriptor {
	d := compute.Descriptor{
		InstanceID:   awssdk.ToString(inst.InstanceId),
		State:        stateFromEC2(inst.State),
		PublicIP:     awssdk.ToString(inst.PublicIpAddress),
		PrivateIP:    awssdk.ToString(inst.PrivateIpAddress),
		InstanceType: string(inst.InstanceType),
		SSHPort:      sshPort,
	}
	if inst.LaunchTime != nil {
		d.LaunchTime = *inst.LaunchTime
	}
	return d
}

func stateFromEC2(s *types.InstanceState) compute.State {
	if s == nil {
		return compute.StatePending
	}
	switch s.Name {
	case types.InstanceStateNamePending:
		return compute.StatePending
	case types.InstanceStateNameRunning:
		return compute.StateRunning
	case types.InstanceStateNameStopping:
		return compute.StateStopping
	case types.InstanceStateNameStopped:
		return compute.StateStopped
	case types.InstanceStateNameShuttingDown, types.InstanceStateNameTerminated:
		return compute.StateTerminated
	default:
		return compute.StatePending
	}
}

func isUnauthorized(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "UnauthorizedOperation" || apiErr.ErrorCode() == "AuthFailure"
	}
	return false
}

func wrapAPIError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode() == "AuthFailure" || apiErr.ErrorCode() == "UnauthorizedOperation" {
			return &compute.ProviderCredentialsError{Message: apiErr.ErrorMessage(), Err: err}
		}
		return &compute.ProviderAPIError{Code: apiErr.ErrorCode(), Message: apiErr.ErrorMessage(), Err: err}
	}
	return &compute.ProviderAPIError{Message: err.Error(), Err: err}
}
