package manifest

import (
	"fmt"
	"os/exec"
	"strings"
)

// runGit runs git in dir and returns its trimmed stdout. A failure carries
// git's own stderr so a bad tag or URL is visible to the user.
func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		var stderr string
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(ee.Stderr))
		}
		where := dir
		if where == "" {
			where = "."
		}
		if stderr != "" {
			return "", fmt.Errorf("git %s (in %s): %s: %w", args[0], where, stderr, err)
		}
		return "", fmt.Errorf("git %s (in %s): %w", args[0], where, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func gitClone(url, dest string) error {
	_, err := runGit("", "clone", "--quiet", url, dest)
	return err
}

// gitCheckout checks out a tag, branch or commit of a header dependency.
func gitCheckout(dir, ref string) error {
	_, err := runGit(dir, "checkout", "--quiet", ref)
	return err
}

func gitFetch(dir string) error {
	_, err := runGit(dir, "fetch", "--quiet", "--all", "--tags")
	return err
}

// gitCurrentCommit returns the HEAD commit recorded in lock.toml.
func gitCurrentCommit(dir string) (string, error) {
	return runGit(dir, "rev-parse", "HEAD")
}

// gitIsClean reports whether a dependency checkout has no local edits, in
// which case the resolver may move it to another ref.
func gitIsClean(dir string) (bool, error) {
	out, err := runGit(dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}
