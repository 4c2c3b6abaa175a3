package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ternarybob/arbor"
)

// NewProcessRunner returns a Runner that executes name with args as a child
// process. Each check gets its own process so a watchdog exit only ends that run.
func NewProcessRunner(name string, args []string, dir string, logger arbor.ILogger) Runner {
	return func(ctx context.Context) (int, error) {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Dir = dir

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()

		if out := strings.TrimSpace(stdout.String()); out != "" {
			logger.Debug().Str("output", out).Msg("Check output")
		}
		if out := strings.TrimSpace(stderr.String()); out != "" {
			logger.Warn().Str("output", out).Msg("Check error output")
		}

		if err == nil {
			return 0, nil
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 1, fmt.Errorf("failed to run check: %w", err)
	}
}
