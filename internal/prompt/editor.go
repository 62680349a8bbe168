package prompt

import (
	"context"
	"os"
	"os/exec"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/menghanl/release-gen/internal/execute"
)

// DefaultEditor is used when neither $VISUAL nor $EDITOR is set.
const DefaultEditor = "vi"

// Editor opens files in the operator's editor.
type Editor struct {
	// Command is a shell-style command line, e.g. "code --wait".
	Command string
	log     *zap.Logger
}

// NewEditor resolves the editor from $VISUAL, then $EDITOR, then DefaultEditor.
func NewEditor(log *zap.Logger) *Editor {
	cmd := os.Getenv("VISUAL")
	if cmd == "" {
		cmd = os.Getenv("EDITOR")
	}
	if cmd == "" {
		cmd = DefaultEditor
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Editor{Command: cmd, log: log}
}

// Edit opens path and blocks until the editor exits. The editor owns the
// terminal for the duration of the call.
func (e *Editor) Edit(ctx context.Context, path string) error {
	name, args, err := execute.Split(e.Command)
	if err != nil {
		return errors.Wrap(err, "editor")
	}
	args = append(args, path)

	e.log.Debug("Opening editor", zap.String("editor", name), zap.String("file", path))
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "editor %s exited", e.Command)
	}
	return nil
}
