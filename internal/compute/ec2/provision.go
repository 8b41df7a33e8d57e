package ec2

import (
	"context"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	smithy "github.com/aws/smithy-go"

	"github.com/campers-dev/campers/internal/compute"
	"github.com/campers-dev/campers/internal/runconfig"
)

// ensureSecurityGroup creates or reuses a security group named after
// instanceName whose ingress permits SSH from cfg.SSHAllowedCIDR (or
// 0.0.0.0/0 if unset) on port 22 plus every port in cfg.Ports, per spec.md
// §4.L3's launch contract.
func (a *Adapter) ensureSecurityGroup(ctx context.Context, instanceName string, cfg *runconfig.RunConfig) (string, error) {
	groupName := "campers-" + instanceName

	existing, err := a.client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []types.Filter{
			{Name: awssdk.String("group-name"), Values: []string{groupName}},
		},
	})
	if err != nil {
		return "", wrapAPIError(err)
	}
	if len(existing.SecurityGroups) > 0 {
		return awssdk.ToString(existing.SecurityGroups[0].GroupId), nil
	}

	created, err := a.client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   awssdk.String(groupName),
		Description: awssdk.String("campers-managed ingress for " + instanceName),
	})
	if err != nil {
		if isAlreadyExists(err) {
			refetch, rerr := a.client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
				Filters: []types.Filter{{Name: awssdk.String("group-name"), Values: []string{groupName}}},
			})
			if rerr == nil && len(refetch.SecurityGroups) > 0 {
				return awssdk.ToString(refetch.SecurityGroups[0].GroupId), nil
			}
		}
		return "", wrapAPIError(err)
	}
	groupID := awssdk.ToString(created.GroupId)

	cidr := cfg.SSHAllowedCIDR
	if cidr == "" {
		cidr = "0.0.0.0/0"
	}

	ports := []int{sshPort}
	ports = append(ports, cfg.Ports...)

	var perms []types.IpPermission
	for _, p := range ports {
		perms = append(perms, types.IpPermission{
			IpProtocol: awssdk.String("tcp"),
			FromPort:   awssdk.Int32(int32(p)),
			ToPort:     awssdk.Int32(int32(p)),
			IpRanges:   []types.IpRange{{CidrIp: awssdk.String(cidr)}},
		})
	}

	if _, err := a.client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       awssdk.String(groupID),
		IpPermissions: perms,
	}); err != nil && !isDuplicateRule(err) {
		return "", wrapAPIError(err)
	}

	return groupID, nil
}

// ensureKeyPair imports a.PublicKeyMaterial under a per-instance key-pair
// name if not already present, reusing an existing key pair of the same
// name otherwise.
func (a *Adapter) ensureKeyPair(ctx context.Context, instanceName string) (string, error) {
	if a.KeyName != "" {
		return a.KeyName, nil
	}
	keyName := "campers-" + instanceName

	existing, err := a.client.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{
		KeyNames: []string{keyName},
	})
	if err == nil && len(existing.KeyPairs) > 0 {
		return keyName, nil
	}

	if len(a.PublicKeyMaterial) == 0 {
		return "", &compute.ProviderAPIError{Message: fmt.Sprintf("no public key material to import for %s", keyName)}
	}

	if _, err := a.client.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           awssdk.String(keyName),
		PublicKeyMaterial: a.PublicKeyMaterial,
	}); err != nil && !isAlreadyExists(err) {
		return "", wrapAPIError(err)
	}
	return keyName, nil
}

func isAlreadyExists(err error) bool {
	return errorCodeIs(err, "InvalidGroup.Duplicate", "InvalidKeyPair.Duplicate")
}

func isDuplicateRule(err error) bool {
	return errorCodeIs(err, "InvalidPermission.Duplicate")
}

func errorCodeIs(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.ErrorCode() == c {
			return true
		}
	}
	return false
}
