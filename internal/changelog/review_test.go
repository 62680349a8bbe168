package changelog

import (
	"context"
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/menghanl/release-gen/internal/relerr"
)

type fakeConsole struct {
	choices []int
	framed  []string
	err     error
}

func (f *fakeConsole) Frame(_, body string) { f.framed = append(f.framed, body) }

func (f *fakeConsole) Select(context.Context, string, []string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	c := f.choices[0]
	f.choices = f.choices[1:]
	return c, nil
}

// appendEditor simulates an operator appending a line in the editor.
type appendEditor struct {
	line  string
	paths []string
}

func (e *appendEditor) Edit(_ context.Context, path string) error {
	e.paths = append(e.paths, path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(e.line)
	return err
}

func newReviewer(t *testing.T, c Console, e Editor) *Reviewer {
	r := NewReviewer(c, e, zaptest.NewLogger(t))
	r.tempDir = t.TempDir()
	return r
}

func TestApprove(t *testing.T) {
	t.Parallel()
	c := &fakeConsole{choices: []int{choiceApprove}}
	got, err := newReviewer(t, c, &appendEditor{}).ConfirmOrEdit(context.Background(), "## 1.1.0\n")
	require.NoError(t, err)
	assert.Equal(t, "## 1.1.0\n", got)
	assert.Equal(t, []string{"## 1.1.0\n"}, c.framed)
}

func TestEditTwiceThenApprove(t *testing.T) {
	t.Parallel()
	c := &fakeConsole{choices: []int{choiceEdit, choiceEdit, choiceApprove}}
	e := &appendEditor{line: "* manual note\n"}
	r := newReviewer(t, c, e)

	got, err := r.ConfirmOrEdit(context.Background(), "## 1.1.0\n")
	require.NoError(t, err)
	assert.Equal(t, "## 1.1.0\n* manual note\n* manual note\n", got)
	assert.Len(t, c.framed, 3, "edited text is shown again")
	assert.Equal(t, "## 1.1.0\n* manual note\n", c.framed[1])

	for _, p := range e.paths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "scratch file %s removed", p)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	c := &fakeConsole{choices: []int{choiceEdit, choiceCancel}}
	_, err := newReviewer(t, c, &appendEditor{}).ConfirmOrEdit(context.Background(), "## 1.1.0\n")
	require.Error(t, err)
	assert.True(t, errors.Is(err, relerr.ErrChangelogCancelled))
	assert.Equal(t, 130, relerr.ExitCode(err))
}

func TestPromptErrorPropagates(t *testing.T) {
	t.Parallel()
	c := &fakeConsole{err: relerr.PromptTimeout(context.DeadlineExceeded)}
	_, err := newReviewer(t, c, &appendEditor{}).ConfirmOrEdit(context.Background(), "x")
	assert.True(t, errors.Is(err, relerr.ErrPromptTimeout))
}

type failingEditor struct{}

func (failingEditor) Edit(context.Context, string) error { return errors.New("editor crashed") }

func TestEditorFailure(t *testing.T) {
	t.Parallel()
	c := &fakeConsole{choices: []int{choiceEdit}}
	_, err := newReviewer(t, c, failingEditor{}).ConfirmOrEdit(context.Background(), "x")
	assert.ErrorContains(t, err, "editor crashed")
}
