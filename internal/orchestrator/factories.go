package orchestrator

import (
	"golang.org/x/crypto/ssh"

	"github.com/campers-dev/campers/internal/sshtransport"
	"github.com/campers-dev/campers/internal/tunnel"
)

// NewSSHTransportFactory returns a Deps.NewTransport value wired to a real
// *sshtransport.Transport, for callers (cmd/campers, internal/cli) outside
// this package that cannot name the unexported transport interface
// directly but can still assign a function of its exact type.
func NewSSHTransportFactory(knownHostsPath string, log sshtransport.Logf) func() transport {
	return func() transport {
		tr := sshtransport.New()
		tr.KnownHostsPath = knownHostsPath
		if log != nil {
			tr.Log = log
		}
		return tr
	}
}

// NewTunnelControllerFactory returns a Deps.NewTunnelController value
// wired to a real *tunnel.Controller.
func NewTunnelControllerFactory() func(client *ssh.Client) tunnelController {
	return func(client *ssh.Client) tunnelController {
		return tunnel.New(client)
	}
}
