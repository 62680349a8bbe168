// Package prompt handles every interaction with the operator's terminal:
// line, secret and multiple-choice prompts, the framed changelog preview, the
// external editor and the browser launch.
//
// Every prompt blocks the pipeline until the operator answers, the prompt
// timeout expires or the context is cancelled.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/menghanl/release-gen/internal/relerr"
)

// DefaultTimeout bounds a single prompt when no timeout is configured.
const DefaultTimeout = 5 * time.Minute

type line struct {
	text string
	err  error
}

// Console reads answers from in and writes prompts to out.
type Console struct {
	in      io.Reader
	out     io.Writer
	timeout time.Duration
	log     *zap.Logger

	once    sync.Once
	reqs    chan struct{}
	lines   chan line
	pending bool
}

// NewConsole returns a Console. A zero timeout means DefaultTimeout.
func NewConsole(in io.Reader, out io.Writer, timeout time.Duration, log *zap.Logger) *Console {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Console{in: in, out: out, timeout: timeout, log: log}
}

// Interactive reports whether input comes from a terminal.
func (c *Console) Interactive() bool {
	f, ok := c.in.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// Printf writes plain text.
func (c *Console) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// Infof writes a highlighted informational line.
func (c *Console) Infof(format string, args ...interface{}) {
	fmt.Fprintln(c.out, color.CyanString(format, args...))
}

// Successf writes a highlighted success line.
func (c *Console) Successf(format string, args ...interface{}) {
	fmt.Fprintln(c.out, color.GreenString(format, args...))
}

// Warnf writes a highlighted warning line.
func (c *Console) Warnf(format string, args ...interface{}) {
	fmt.Fprintln(c.out, color.YellowString(format, args...))
}

var frameStyle = lipgloss.NewStyle().
	Border(lipgloss.NormalBorder(), true, false).
	Padding(0, 1)

// Frame prints body between horizontal separators under a bold title.
func (c *Console) Frame(title, body string) {
	fmt.Fprintln(c.out, color.New(color.Bold).Sprint(title))
	fmt.Fprintln(c.out, frameStyle.Render(strings.TrimRight(body, "\n")))
}

// readLine returns the next input line, honouring the prompt timeout and ctx.
// The reader goroutine only reads when asked, so a secret prompt can take the
// terminal between line prompts. A read abandoned by a timeout stays pending
// and answers the next prompt.
func (c *Console) readLine(ctx context.Context) (string, error) {
	c.once.Do(func() {
		c.reqs = make(chan struct{})
		c.lines = make(chan line, 1)
		go func() {
			r := bufio.NewReader(c.in)
			for range c.reqs {
				s, err := r.ReadString('\n')
				if err != nil && s == "" {
					c.lines <- line{err: err}
					continue
				}
				c.lines <- line{text: strings.TrimRight(s, "\r\n")}
			}
		}()
	})
	if !c.pending {
		c.reqs <- struct{}{}
		c.pending = true
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	select {
	case l := <-c.lines:
		c.pending = false
		if l.err != nil {
			return "", errors.Wrap(l.err, "read answer")
		}
		return l.text, nil
	case <-ctx.Done():
		fmt.Fprintln(c.out)
		c.log.Warn("Prompt abandoned", zap.Duration("timeout", c.timeout), zap.Error(ctx.Err()))
		return "", relerr.PromptTimeout(ctx.Err())
	}
}

// Ask prompts for a line of text. An empty answer yields def.
func (c *Console) Ask(ctx context.Context, message, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(c.out, "? %s [%s]: ", message, def)
	} else {
		fmt.Fprintf(c.out, "? %s: ", message)
	}
	s, err := c.readLine(ctx)
	if err != nil {
		return "", err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return s, nil
}

// AskSecret prompts for a value without echoing it when input is a terminal.
func (c *Console) AskSecret(ctx context.Context, message string) (string, error) {
	fmt.Fprintf(c.out, "? %s: ", message)
	f, ok := c.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		s, err := c.readLine(ctx)
		return strings.TrimSpace(s), err
	}

	type result struct {
		b   []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		b, err := term.ReadPassword(int(f.Fd()))
		ch <- result{b, err}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	select {
	case r := <-ch:
		fmt.Fprintln(c.out)
		if r.err != nil {
			return "", errors.Wrap(r.err, "read secret")
		}
		return strings.TrimSpace(string(r.b)), nil
	case <-ctx.Done():
		fmt.Fprintln(c.out)
		return "", relerr.PromptTimeout(ctx.Err())
	}
}

// Continue waits for the operator to press enter.
func (c *Console) Continue(ctx context.Context, message string) error {
	fmt.Fprintf(c.out, "%s ", message)
	_, err := c.readLine(ctx)
	return err
}

// Select shows numbered options and returns the zero-based index chosen. The
// operator may answer with the number or the option text; invalid answers are
// asked again.
func (c *Console) Select(ctx context.Context, message string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("select: no options")
	}
	for {
		fmt.Fprintln(c.out, message)
		for i, o := range options {
			fmt.Fprintf(c.out, "  %d) %s\n", i+1, o)
		}
		fmt.Fprint(c.out, "? Choice: ")
		s, err := c.readLine(ctx)
		if err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		for i, o := range options {
			if strings.EqualFold(s, o) {
				return i, nil
			}
		}
		c.Warnf("Please answer with a number between 1 and %d.", len(options))
	}
}
