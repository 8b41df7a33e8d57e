package ec2

import (
	"context"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campers-dev/campers/internal/compute"
	"github.com/campers-dev/campers/internal/runconfig"
)

func validCfgForLaunchTest() *runconfig.RunConfig {
	region := "us-east-1"
	instanceType := "t3.micro"
	diskSize := 20
	overrides := runconfig.Overrides{
		Region:       &region,
		InstanceType: &instanceType,
		DiskSizeGB:   &diskSize,
	}
	cfg, err := runconfig.Resolve(nil, "", overrides)
	if err != nil {
		panic(err)
	}
	cfg2 := *cfg
	return &cfg2
}

type stubAPI struct {
	describeOut *ec2.DescribeInstancesOutput
	runOut      *ec2.RunInstancesOutput
	sgOut       *ec2.DescribeSecurityGroupsOutput
	volOut      *ec2.DescribeVolumesOutput

	runCalls int
}

func (s *stubAPI) DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return s.describeOut, nil
}
func (s *stubAPI) RunInstances(ctx context.Context, in *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	s.runCalls++
	return s.runOut, nil
}
func (s *stubAPI) StartInstances(ctx context.Context, in *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	return &ec2.StartInstancesOutput{}, nil
}
func (s *stubAPI) StopInstances(ctx context.Context, in *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	return &ec2.StopInstancesOutput{}, nil
}
func (s *stubAPI) TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	return &ec2.TerminateInstancesOutput{}, nil
}
func (s *stubAPI) DescribeVolumes(ctx context.Context, in *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	return s.volOut, nil
}
func (s *stubAPI) DescribeRegions(ctx context.Context, in *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	return &ec2.DescribeRegionsOutput{}, nil
}
func (s *stubAPI) DescribeKeyPairs(ctx context.Context, in *ec2.DescribeKeyPairsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error) {
	return &ec2.DescribeKeyPairsOutput{}, nil
}
func (s *stubAPI) ImportKeyPair(ctx context.Context, in *ec2.ImportKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.ImportKeyPairOutput, error) {
	return &ec2.ImportKeyPairOutput{}, nil
}
func (s *stubAPI) DescribeSecurityGroups(ctx context.Context, in *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	return s.sgOut, nil
}
func (s *stubAPI) CreateSecurityGroup(ctx context.Context, in *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	return &ec2.CreateSecurityGroupOutput{GroupId: awssdk.String("sg-123")}, nil
}
func (s *stubAPI) AuthorizeSecurityGroupIngress(ctx context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	return &ec2.AuthorizeSecurityGroupIngressOutput{}, nil
}
func (s *stubAPI) DescribeImages(ctx context.Context, in *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	return &ec2.DescribeImagesOutput{}, nil
}

func TestDescribeMapsState(t *testing.T) {
	launch := time.Now()
	stub := &stubAPI{
		describeOut: &ec2.DescribeInstancesOutput{
			Reservations: []types.Reservation{
				{Instances: []types.Instance{
					{
						InstanceId:      awssdk.String("i-abc"),
						State:           &types.InstanceState{Name: types.InstanceStateNameRunning},
						PublicIpAddress: awssdk.String("1.2.3.4"),
						LaunchTime:      &launch,
					},
				}},
			},
		},
	}
	a := &Adapter{client: stub}
	desc, err := a.Describe(context.Background(), "i-abc")
	require.NoError(t, err)
	assert.Equal(t, compute.StateRunning, desc.State)
	assert.Equal(t, "1.2.3.4", desc.PublicIP)
}

func TestLaunchWaitsForRunningWithPublicIP(t *testing.T) {
	launch := time.Now()
	stub := &stubAPI{
		describeOut: &ec2.DescribeInstancesOutput{
			Reservations: []types.Reservation{
				{Instances: []types.Instance{
					{
						InstanceId:      awssdk.String("i-new"),
						State:           &types.InstanceState{Name: types.InstanceStateNameRunning},
						PublicIpAddress: awssdk.String("5.6.7.8"),
						LaunchTime:      &launch,
					},
				}},
			},
		},
		runOut: &ec2.RunInstancesOutput{
			Instances: []types.Instance{{InstanceId: awssdk.String("i-new")}},
		},
		sgOut: &ec2.DescribeSecurityGroupsOutput{},
	}
	a := &Adapter{client: stub, AMI: "ami-test", PublicKeyMaterial: []byte("ssh-ed25519 AAAA")}
	cfg := validCfgForLaunchTest()
	desc, err := a.Launch(context.Background(), cfg, "campers-test")
	require.NoError(t, err)
	assert.Equal(t, "i-new", desc.InstanceID)
	assert.Equal(t, "5.6.7.8", desc.PublicIP)
	assert.False(t, desc.Reused)
	assert.Equal(t, 1, stub.runCalls)
}

func TestGetVolumeSize(t *testing.T) {
	launch := time.Now()
	stub := &stubAPI{
		describeOut: &ec2.DescribeInstancesOutput{
			Reservations: []types.Reservation{
				{Instances: []types.Instance{
					{
						InstanceId: awssdk.String("i-vol"),
						State:      &types.InstanceState{Name: types.InstanceStateNameRunning},
						LaunchTime: &launch,
						BlockDeviceMappings: []types.InstanceBlockDeviceMapping{
							{Ebs: &types.EbsInstanceBlockDevice{VolumeId: awssdk.String("vol-1")}},
						},
					},
				}},
			},
		},
		volOut: &ec2.DescribeVolumesOutput{
			Volumes: []types.Volume{{Size: awssdk.Int32(40)}},
		},
	}
	a := &Adapter{client: stub}
	size, err := a.GetVolumeSize(context.Background(), "i-vol")
	require.NoError(t, err)
	assert.Equal(t, 40, size)
}
