package identity

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeLowercasesAndCollapses(t *testing.T) {
	assert.Equal(t, "feature-auth", Sanitize("Feature/Auth"))
	assert.Equal(t, "a-b-c", Sanitize("a___b   c"))
	assert.Equal(t, "trimmed", Sanitize("--trimmed--"))
}

func TestSanitizeTruncatesTo256Bytes(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "a"
	}
	out := Sanitize(long)
	assert.LessOrEqual(t, len(out), 256)
}

func TestDeriveNameFallsBackToTimestampOutsideGit(t *testing.T) {
	dir := t.TempDir()
	restore := nowFunc
	nowFunc = func() time.Time { return time.Unix(1700000000, 0) }
	defer func() { nowFunc = restore }()

	name := DeriveName(context.Background(), dir)
	assert.Equal(t, "campers-1700000000", name)
}

func TestDeriveNameFromGitRepoWithRemoteAndBranch(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	repoDir := filepath.Join(dir, "My-App")
	require.NoError(t, os.MkdirAll(repoDir, 0o755))

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = repoDir
		require.NoError(t, cmd.Run())
	}
	run("init", "-q", "-b", "Feature/Thing")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	run("remote", "add", "origin", "https://example.com/My-App.git")

	name := DeriveName(context.Background(), repoDir)
	assert.Equal(t, "campers-my-app-feature-thing", name)
}

func TestDeriveNameOutsideGitRepoEvenWithGitInstalled(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	restore := nowFunc
	nowFunc = func() time.Time { return time.Unix(42, 0) }
	defer func() { nowFunc = restore }()

	name := DeriveName(context.Background(), dir)
	assert.Equal(t, "campers-42", name)
}
