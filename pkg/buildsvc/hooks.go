package buildsvc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/3leaps/kiln/pkg/build"
)

// runHooks executes hook commands in order through the shell. The first
// failing hook aborts the build with a failure result carrying the hook's
// exit code and captured output; a nil return means every hook passed.
func (s *Service) runHooks(ctx context.Context, job *build.Job, dir string, hooks []string, phase string, env map[string]string) *build.Result {
	for _, command := range hooks {
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Dir = dir
		cmd.Env = hookEnv(env)

		out, err := cmd.CombinedOutput()
		if len(out) > 0 {
			job.Logs = append(job.Logs, strings.Split(strings.TrimRight(string(out), "\n"), "\n")...)
		}
		if err == nil {
			continue
		}

		exitCode := 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		return build.Failure(job, exitCode, build.Error{
			Message: fmt.Sprintf("%s hook failed: %s: %v", phase, command, err),
			Code:    phase + "_hook_failed",
		})
	}
	return nil
}

func hookEnv(extra map[string]string) []string {
	env := os.Environ()
	if len(extra) == 0 {
		return env
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
