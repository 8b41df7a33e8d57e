package syncctl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreflightFailsWhenBinaryMissing(t *testing.T) {
	c := New("definitely-not-a-real-binary-xyz")
	err := c.Preflight()
	require.Error(t, err)
	var unavailable *SyncUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestCreateSessionWrapsStderrOnFailure(t *testing.T) {
	c := New("mutagen")
	c.runCommand = func(ctx context.Context, args ...string) (string, string, error) {
		return "", "remote path invalid", assertErr{}
	}
	err := c.CreateSession(context.Background(), CreateSessionParams{
		Name: "s1", Local: ".", Remote: "/app", Host: "1.2.3.4", User: "dev",
	})
	require.Error(t, err)
	var createErr *SyncCreateFailedError
	require.ErrorAs(t, err, &createErr)
	assert.Equal(t, "remote path invalid", createErr.Stderr)
}

func TestWaitSteadySucceedsOnWatchingToken(t *testing.T) {
	c := New("mutagen")
	c.PollInterval = time.Millisecond
	calls := 0
	c.runCommand = func(ctx context.Context, args ...string) (string, string, error) {
		calls++
		if calls < 3 {
			return "Status: Staging files", "", nil
		}
		return "Status: Watching for changes", "", nil
	}
	err := c.WaitSteady(context.Background(), "s1", 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestWaitSteadyTimesOut(t *testing.T) {
	c := New("mutagen")
	c.PollInterval = time.Millisecond
	c.runCommand = func(ctx context.Context, args ...string) (string, string, error) {
		return "Status: Staging files", "", nil
	}
	err := c.WaitSteady(context.Background(), "s1", 5*time.Millisecond)
	require.Error(t, err)
	var timeout *SyncTimeoutError
	require.ErrorAs(t, err, &timeout)
}

func TestIsSteadyCaseInsensitiveSubstring(t *testing.T) {
	assert.True(t, isSteady("WATCHING for changes"))
	assert.True(t, isSteady("watching"))
	assert.False(t, isSteady("Staging files"))
}

func TestCleanupOrphanedSwallowsErrors(t *testing.T) {
	c := New("mutagen")
	c.runCommand = func(ctx context.Context, args ...string) (string, string, error) {
		return "", "", assertErr{}
	}
	c.CleanupOrphaned(context.Background(), "s1") // must not panic
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
