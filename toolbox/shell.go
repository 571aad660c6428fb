package toolbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/martinemde/stepagent/steploop"
)

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// sensitiveEnvPatterns are case-insensitive suffixes for environment variables
// that are withheld from commands.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always included regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

// filterEnvironment returns environ without sensitive variables.
func filterEnvironment(environ []string) []string {
	var filtered []string
	for _, env := range environ {
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// Shell runs commands on the local machine for the run_command tool.
type Shell struct {
	// WorkDir is the directory commands run in; empty uses the process
	// working directory.
	WorkDir string
	// Timeout bounds each command; zero leaves only the caller's context.
	Timeout time.Duration
	// Env is appended to the filtered process environment.
	Env map[string]string
	// MaxOutput caps the captured output included in the tool result.
	MaxOutput int
}

// Exec runs command with bash -c in its own process group.
func (s *Shell) Exec(ctx context.Context, command string) (*ExecResult, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	shell, shellArg := "/bin/bash", "-c"
	if runtime.GOOS == "windows" {
		shell, shellArg = "cmd.exe", "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = s.WorkDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	env := filterEnvironment(os.Environ())
	for k, v := range s.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.TimedOut = true
			result.ExitCode = -1
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			return nil, fmt.Errorf("run_command: %w", err)
		}
	}
	return result, nil
}

// Run executes command and reports its exit code followed by any output.
func (s *Shell) Run(ctx context.Context, command string) (string, error) {
	res, err := s.Exec(ctx, command)
	if err != nil {
		return "", err
	}
	if res.TimedOut {
		return "", fmt.Errorf("command timed out after %s", s.Timeout)
	}

	msg := fmt.Sprintf("Ran command with exit code %d", res.ExitCode)
	if out := strings.TrimRight(res.Output(), "\n"); out != "" {
		if s.MaxOutput > 0 {
			out = steploop.TruncateOutput(out, s.MaxOutput, steploop.TruncateHeadTail)
		}
		msg += "\n" + out
	}
	return msg, nil
}

// Tool returns the run_command tool.
func (s *Shell) Tool() steploop.Tool {
	return steploop.Tool{
		Name:        "run_command",
		Description: "Takes a shell command as input, runs it on the user's machine and returns the exit code and output.",
		Run:         s.Run,
	}
}
