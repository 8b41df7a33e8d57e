package cli

import (
	"context"
	"fmt"

	"github.com/campers-dev/campers/internal/compute"
	"github.com/campers-dev/campers/internal/compute/dockerdev"
	"github.com/campers-dev/campers/internal/compute/ec2"
	"github.com/campers-dev/campers/internal/runconfig"
)

// buildProvider constructs the Compute Adapter named by providerName.
// region is required for the aws backend and ignored for docker.
func buildProvider(ctx context.Context, providerName, region string) (compute.Provider, error) {
	switch runconfig.Provider(providerName) {
	case runconfig.ProviderDocker:
		return dockerdev.New(ctx)
	case runconfig.ProviderAWS, "":
		if region == "" {
			return nil, fmt.Errorf("--region is required for the aws provider")
		}
		return ec2.New(ctx, region)
	default:
		return nil, fmt.Errorf("unknown --provider %q (supported: aws, docker)", providerName)
	}
}

// buildProvisioningProvider is buildProvider plus per-run key-pair
// material, for commands (run) that may launch a fresh instance rather
// than only operate on an existing one.
func buildProvisioningProvider(ctx context.Context, providerName, region, keyDir string) (compute.Provider, string, error) {
	switch runconfig.Provider(providerName) {
	case runconfig.ProviderDocker:
		p, err := dockerdev.New(ctx)
		return p, "", err
	case runconfig.ProviderAWS, "":
		if region == "" {
			return nil, "", fmt.Errorf("region is required for the aws provider")
		}
		authorizedKey, privateKeyPath, err := ensureKeyMaterial(keyDir)
		if err != nil {
			return nil, "", fmt.Errorf("prepare ssh key material: %w", err)
		}
		adapter, err := ec2.New(ctx, region)
		if err != nil {
			return nil, "", err
		}
		adapter.PublicKeyMaterial = authorizedKey
		adapter.PrivateKeyPath = privateKeyPath
		return withKeyFile(adapter, privateKeyPath), privateKeyPath, nil
	default:
		return nil, "", fmt.Errorf("unknown provider %q (supported: aws, docker)", providerName)
	}
}
