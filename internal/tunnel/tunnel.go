// Package tunnel implements the Tunnel Controller component (spec.md
// §4.L6): N local→remote TCP forwards over one SSH client connection,
// opened and torn down atomically. Grounded on the SSH dial idiom in
// _teacher_ref/paas_ssh_transport_cmd.go (dialPaasSSHClient). Forwards are
// opened as direct-tcpip channels over the *ssh.Client it is given; the
// orchestrator passes the primary SSH Transport's client.
package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
)

// TunnelError signals a forwarder bind failure. On partial failure,
// Controller stops any already-started forwarders before returning it.
type TunnelError struct {
	Port int
	Err  error
}

func (e *TunnelError) Error() string {
	return fmt.Sprintf("tunnel on port %d failed: %v", e.Port, e.Err)
}

func (e *TunnelError) Unwrap() error { return e.Err }

type forwarder struct {
	port     int
	listener net.Listener
	wg       sync.WaitGroup
	closeCh  chan struct{}
}

// Controller maintains a set of local->remote forwarders over a single SSH
// client connection.
type Controller struct {
	client *ssh.Client
	Log    func(format string, args ...any)

	mu         sync.Mutex
	forwarders []*forwarder
}

// New returns a Controller that will forward over client. The caller owns
// client's lifecycle; the orchestrator passes the SSH Transport's client.
func New(client *ssh.Client) *Controller {
	return &Controller{client: client, Log: func(string, ...any) {}}
}

// CreateTunnels opens one forwarder per port, binding localhost:port to
// localhost:port on the remote end. All bindings are localhost-only on
// both ends. Warns (does not fail) on privileged (<1024) ports. On any
// bind failure, every forwarder started so far in this call is stopped
// before TunnelError is returned.
func (c *Controller) CreateTunnels(ctx context.Context, ports []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var started []*forwarder
	for _, port := range ports {
		if port < 1024 {
			c.Log("warning: tunnel port %d is privileged; binding may require elevated permissions", port)
		}
		fwd, err := c.startForwarder(ctx, port)
		if err != nil {
			for _, s := range started {
				s.stop()
			}
			return &TunnelError{Port: port, Err: err}
		}
		started = append(started, fwd)
	}
	c.forwarders = append(c.forwarders, started...)
	return nil
}

func (c *Controller) startForwarder(ctx context.Context, port int) (*forwarder, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	fwd := &forwarder{port: port, listener: listener, closeCh: make(chan struct{})}
	fwd.wg.Add(1)
	go fwd.accept(ctx, c.client, c.Log)
	return fwd, nil
}

func (f *forwarder) accept(ctx context.Context, client *ssh.Client, log func(string, ...any)) {
	defer f.wg.Done()
	for {
		localConn, err := f.listener.Accept()
		if err != nil {
			select {
			case <-f.closeCh:
				return
			default:
				log("tunnel accept on port %d failed: %v", f.port, err)
				return
			}
		}
		go f.forwardOne(ctx, client, localConn, log)
	}
}

func (f *forwarder) forwardOne(ctx context.Context, client *ssh.Client, localConn net.Conn, log func(string, ...any)) {
	defer localConn.Close()
	remoteAddr := fmt.Sprintf("localhost:%d", f.port)
	remoteConn, err := client.DialContext(ctx, "tcp", remoteAddr)
	if err != nil {
		log("tunnel port %d: remote dial failed: %v", f.port, err)
		return
	}
	defer remoteConn.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(remoteConn, localConn)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(localConn, remoteConn)
	}()
	wg.Wait()
}

func (f *forwarder) stop() {
	close(f.closeCh)
	_ = f.listener.Close()
	f.wg.Wait()
}

// StopAll closes every forwarder; idempotent; listener close errors are
// ignored.
func (c *Controller) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fwd := range c.forwarders {
		fwd.stop()
	}
	c.forwarders = nil
}
