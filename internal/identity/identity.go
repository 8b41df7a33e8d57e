// Package identity implements the Instance Identity component (spec.md
// §4.L2): it derives a deterministic instance name from workspace context
// (git repo + branch) or a timestamp fallback, then sanitizes it for cloud
// tag rules. Grounded on the git-config-sniffing idiom in git_identity.go,
// adapted from seeding a container's gitconfig to naming a compute
// instance.
package identity

import (
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// nowFunc is overridable in tests so timestamp-fallback naming is
// deterministic.
var nowFunc = time.Now

var (
	nonAllowedChars = regexp.MustCompile(`[^a-z0-9-]`)
	repeatedDashes  = regexp.MustCompile(`-{2,}`)
)

// Sanitize applies spec.md §4.L2's sanitization rule: lowercase; "/" → "-";
// strip characters outside [a-z0-9-] to "-"; collapse repeated "-"; trim
// leading/trailing "-"; truncate to 256 bytes.
func Sanitize(candidate string) string {
	s := strings.ToLower(candidate)
	s = strings.ReplaceAll(s, "/", "-")
	s = nonAllowedChars.ReplaceAllString(s, "-")
	s = repeatedDashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 256 {
		s = s[:256]
		s = strings.TrimRight(s, "-")
	}
	return s
}

// DeriveName produces a deterministic instance name: "campers-" plus the
// sanitized repo basename and branch when the working directory sits inside
// a git repository on a named branch, else "campers-" plus the current
// unix timestamp.
func DeriveName(ctx context.Context, workdir string) string {
	repo, branch, ok := gitWorkspace(ctx, workdir)
	if ok {
		return "campers-" + Sanitize(repo) + "-" + Sanitize(branch)
	}
	return "campers-" + fallbackTimestamp()
}

func fallbackTimestamp() string {
	return strconv.FormatInt(nowFunc().Unix(), 10)
}

// gitWorkspace reports the repository basename and current branch when
// workdir is inside a git repo with a remote origin and a non-detached
// branch.
func gitWorkspace(ctx context.Context, workdir string) (repo, branch string, ok bool) {
	if _, err := exec.LookPath("git"); err != nil {
		return "", "", false
	}
	toplevel, err := gitOutput(ctx, workdir, "rev-parse", "--show-toplevel")
	if err != nil || toplevel == "" {
		return "", "", false
	}
	remote, err := gitOutput(ctx, workdir, "remote", "get-url", "origin")
	if err != nil || remote == "" {
		return "", "", false
	}
	branchName, err := gitOutput(ctx, workdir, "symbolic-ref", "--short", "HEAD")
	if err != nil || branchName == "" || branchName == "HEAD" {
		return "", "", false
	}
	return basename(toplevel), branchName, true
}

func basename(path string) string {
	path = strings.TrimRight(path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func gitOutput(ctx context.Context, workdir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = workdir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
