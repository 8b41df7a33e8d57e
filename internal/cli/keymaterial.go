package cli

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"

	"github.com/campers-dev/campers/internal/compute"
	"github.com/campers-dev/campers/internal/runconfig"
)

// marshalPrivateKeyPEM encodes an ed25519 private key as PKCS#8 PEM, a
// format golang.org/x/crypto/ssh's ParsePrivateKey reads directly.
func marshalPrivateKeyPEM(priv ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ensureKeyMaterial returns an OpenSSH authorized-key line and the path to
// its matching private key file under keyDir, generating a fresh ed25519
// pair on first use and reusing it on subsequent runs against the same
// keyDir. Keys persist across runs rather than being deleted per-run; see
// DESIGN.md for why per-run disposal isn't reachable from this layer.
func ensureKeyMaterial(keyDir string) (authorizedKey []byte, privateKeyPath string, err error) {
	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, "", err
	}
	privateKeyPath = filepath.Join(keyDir, "campers_ed25519")
	publicKeyPath := privateKeyPath + ".pub"

	if raw, err := os.ReadFile(publicKeyPath); err == nil {
		return raw, privateKeyPath, nil
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("generate ssh key pair: %w", err)
	}
	signer, err := ssh.NewSignerFromSigner(priv)
	if err != nil {
		return nil, "", fmt.Errorf("wrap ssh signer: %w", err)
	}
	authorizedKey = ssh.MarshalAuthorizedKey(signer.PublicKey())

	privatePEM, err := marshalPrivateKeyPEM(priv)
	if err != nil {
		return nil, "", err
	}
	if err := os.WriteFile(privateKeyPath, privatePEM, 0o600); err != nil {
		return nil, "", err
	}
	if err := os.WriteFile(publicKeyPath, authorizedKey, 0o644); err != nil {
		return nil, "", err
	}
	return authorizedKey, privateKeyPath, nil
}

// keyFilledProvider wraps a compute.Provider so every Descriptor it returns
// carries the orchestrator-managed private key path. Adapters themselves
// are cloud-account-scoped and don't know which local file a given run's
// key pair was written to.
type keyFilledProvider struct {
	compute.Provider
	keyFile string
}

func withKeyFile(p compute.Provider, keyFile string) compute.Provider {
	if keyFile == "" {
		return p
	}
	return &keyFilledProvider{Provider: p, keyFile: keyFile}
}

func (p *keyFilledProvider) fill(d compute.Descriptor, err error) (compute.Descriptor, error) {
	if err == nil && d.KeyFile == "" {
		d.KeyFile = p.keyFile
	}
	return d, err
}

func (p *keyFilledProvider) fillAll(ds []compute.Descriptor, err error) ([]compute.Descriptor, error) {
	if err != nil {
		return ds, err
	}
	for i := range ds {
		if ds[i].KeyFile == "" {
			ds[i].KeyFile = p.keyFile
		}
	}
	return ds, nil
}

func (p *keyFilledProvider) FindInstancesByNameOrID(ctx context.Context, needle, regionFilter string) ([]compute.Descriptor, error) {
	return p.fillAll(p.Provider.FindInstancesByNameOrID(ctx, needle, regionFilter))
}

func (p *keyFilledProvider) ListManaged(ctx context.Context, regionFilter string) ([]compute.Descriptor, error) {
	return p.fillAll(p.Provider.ListManaged(ctx, regionFilter))
}

func (p *keyFilledProvider) Launch(ctx context.Context, cfg *runconfig.RunConfig, instanceName string) (compute.Descriptor, error) {
	return p.fill(p.Provider.Launch(ctx, cfg, instanceName))
}

func (p *keyFilledProvider) Start(ctx context.Context, instanceID string) (compute.Descriptor, error) {
	return p.fill(p.Provider.Start(ctx, instanceID))
}

func (p *keyFilledProvider) Describe(ctx context.Context, instanceID string) (compute.Descriptor, error) {
	return p.fill(p.Provider.Describe(ctx, instanceID))
}

var _ compute.Provider = (*keyFilledProvider)(nil)
