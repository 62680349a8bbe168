// Package execute runs external commands on behalf of the release pipeline.
//
// Every call blocks until the process exits. Output is captured (stdout and
// stderr combined) so failures can carry the tool's own message upward.
package execute

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"mvdan.cc/sh/v3/shell"
)

// Options describes one command invocation.
type Options struct {
	Command string
	Args    []string
	Dir     string
	// Env is appended to the current process environment.
	Env []string
	// Stream mirrors output to Stdout while still capturing it.
	Stream  io.Writer
	Timeout time.Duration
}

// Runner executes commands with structured logging.
type Runner struct {
	log *zap.Logger
}

// New returns a Runner. A nil logger disables logging.
func New(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{log: log}
}

// Run executes the command and returns its trimmed combined output.
// On failure the returned error wraps the exit error and the output.
func (r *Runner) Run(ctx context.Context, opts Options) (string, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	var buf bytes.Buffer
	var w io.Writer = &buf
	if opts.Stream != nil {
		w = io.MultiWriter(opts.Stream, &buf)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	cmdStr := commandString(opts.Command, opts.Args)
	r.log.Debug("Running command", zap.String("command", cmdStr), zap.String("dir", opts.Dir))

	err := cmd.Run()
	output := strings.TrimSpace(buf.String())
	if err != nil {
		r.log.Debug("Command failed",
			zap.String("command", cmdStr),
			zap.Error(err),
			zap.String("output", output))
		if output != "" {
			return output, errors.Wrapf(err, "%s failed\nOutput: %s", cmdStr, output)
		}
		return output, errors.Wrapf(err, "%s failed", cmdStr)
	}
	return output, nil
}

// Split breaks a command line such as "npm run lint -- --max-warnings 0" into
// its program and arguments using shell quoting rules. Variable references are
// expanded from the process environment.
func Split(line string) (string, []string, error) {
	fields, err := shell.Fields(line, os.Getenv)
	if err != nil {
		return "", nil, errors.Wrapf(err, "parse command %q", line)
	}
	if len(fields) == 0 {
		return "", nil, errors.Newf("empty command %q", line)
	}
	return fields[0], fields[1:], nil
}

func commandString(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
