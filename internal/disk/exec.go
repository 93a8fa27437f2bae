package disk

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner abstracts the external tools so they can be mocked in tests.
type Runner interface {
	// LookPath resolves a program through the host's PATH.
	LookPath(name string) (string, error)

	// Run executes name and waits for it. A non-zero exit is an error that
	// carries whatever the tool printed on stderr.
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs real programs with os/exec.
type ExecRunner struct{}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}
