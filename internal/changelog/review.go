// Package changelog lets the operator approve, edit or reject a generated
// changelog section before anything is written.
package changelog

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/menghanl/release-gen/internal/relerr"
)

// Console shows the section and asks for a decision.
type Console interface {
	Frame(title, body string)
	Select(ctx context.Context, message string, options []string) (int, error)
}

// Editor opens a file and blocks until the operator is done with it.
type Editor interface {
	Edit(ctx context.Context, path string) error
}

// Choices offered after the preview, in display order.
var Choices = []string{"approve", "edit", "cancel"}

const (
	choiceApprove = iota
	choiceEdit
	choiceCancel
)

// Reviewer runs the approve/edit/cancel loop.
type Reviewer struct {
	console Console
	editor  Editor
	log     *zap.Logger
	// tempDir holds the scratch file; "" means os.TempDir.
	tempDir string
}

// NewReviewer returns a Reviewer.
func NewReviewer(c Console, e Editor, log *zap.Logger) *Reviewer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reviewer{console: c, editor: e, log: log}
}

// ConfirmOrEdit returns the approved text. Each edit round trips the text
// through a scratch file and shows the result again; there is no limit on
// rounds. Cancel returns relerr.ErrChangelogCancelled.
func (r *Reviewer) ConfirmOrEdit(ctx context.Context, text string) (string, error) {
	for {
		r.console.Frame("Changelog", text)
		choice, err := r.console.Select(ctx, "Use this changelog?", Choices)
		if err != nil {
			return "", err
		}
		switch choice {
		case choiceApprove:
			return text, nil
		case choiceCancel:
			return "", relerr.ChangelogCancelled()
		case choiceEdit:
			edited, err := r.edit(ctx, text)
			if err != nil {
				return "", err
			}
			text = edited
		}
	}
}

func (r *Reviewer) edit(ctx context.Context, text string) (string, error) {
	f, err := os.CreateTemp(r.tempDir, "release-gen-changelog-*.md")
	if err != nil {
		return "", errors.Wrap(err, "create scratch file")
	}
	path := f.Name()
	defer os.Remove(path)

	_, werr := f.WriteString(text)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return "", errors.Wrap(werr, "write scratch file")
	}

	if err := r.editor.Edit(ctx, path); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "read edited changelog")
	}
	r.log.Debug("Changelog edited", zap.Int("bytes", len(data)))
	return string(data), nil
}
