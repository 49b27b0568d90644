package manifest

import (
	"fmt"
	"os/exec"
	"strings"
)

// git runs a git subcommand in dir ("" for the current directory) and
// returns its trimmed standard output.
func git(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		var stderr string
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(ee.Stderr))
		}
		return "", fmt.Errorf("git %s in %q: %s: %w", args[0], dir, stderr, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func gitClone(url, dest string) error {
	_, err := git("", "clone", "--quiet", url, dest)
	return err
}

// gitCheckout checks out a tag, branch or commit.
func gitCheckout(dir, ref string) error {
	_, err := git(dir, "checkout", "--quiet", ref)
	return err
}

func gitFetch(dir string) error {
	_, err := git(dir, "fetch", "--quiet", "--all", "--tags")
	return err
}

func gitCurrentCommit(dir string) (string, error) {
	return git(dir, "rev-parse", "HEAD")
}
