package sshtransport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startEchoSSHServer starts a minimal in-process SSH server accepting any
// password and running requested "exec" commands through a fixed
// handler, so Transport.Execute can be exercised without a real host.
func startEchoSSHServer(t *testing.T, handle func(cmd string) (exitCode int, output string)) (addr string, stop func()) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(key)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			nConn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				sConn, chans, reqs, err := ssh.NewServerConn(nConn, config)
				if err != nil {
					return
				}
				defer sConn.Close()
				go ssh.DiscardRequests(reqs)
				for newChannel := range chans {
					if newChannel.ChannelType() != "session" {
						_ = newChannel.Reject(ssh.UnknownChannelType, "unsupported")
						continue
					}
					channel, requests, err := newChannel.Accept()
					if err != nil {
						continue
					}
					go func() {
						defer channel.Close()
						for req := range requests {
							switch req.Type {
							case "pty-req":
								_ = req.Reply(true, nil)
							case "exec":
								var payload struct{ Command string }
								_ = ssh.Unmarshal(req.Payload, &payload)
								_ = req.Reply(true, nil)
								code, out := handle(payload.Command)
								_, _ = channel.Write([]byte(out))
								status := make([]byte, 4)
								status[3] = byte(code)
								_, _ = channel.SendRequest("exit-status", false, status)
								return
							}
						}
					}()
				}
			}()
		}
	}()

	return listener.Addr().String(), func() { _ = listener.Close() }
}

func TestConnectAndExecuteRoundTrip(t *testing.T) {
	addr, stop := startEchoSSHServer(t, func(cmd string) (int, string) {
		return 0, "hello from remote\n"
	})
	defer stop()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port := mustAtoi(t, portStr)

	tr := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = tr.Connect(ctx, ConnectOptions{
		Host:     host,
		Port:     port,
		Username: "dev",
		Password: "anything",
		Delays:   []time.Duration{10 * time.Millisecond},
	})
	require.NoError(t, err)
	defer tr.Close()

	var lines []string
	code, err := tr.ExecuteRaw(ctx, "echo hi", func(line string) {
		lines = append(lines, line)
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, lines, "hello from remote")
}

func TestConnectFailsAfterExhaustingBackoff(t *testing.T) {
	tr := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := tr.Connect(ctx, ConnectOptions{
		Host:     "127.0.0.1",
		Port:     1, // nothing listens here
		Username: "dev",
		Password: "x",
		Delays:   []time.Duration{10 * time.Millisecond, 10 * time.Millisecond},
	})
	require.Error(t, err)
	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			t.Fatalf("not a port: %s", s)
		}
		n = n*10 + int(r-'0')
	}
	return n
}
