package prompt

import (
	"os/exec"
	"runtime"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Browser launches the system web browser.
type Browser struct {
	log *zap.Logger
	// command builds the launcher; replaced in tests.
	command func(url string) *exec.Cmd
}

// NewBrowser returns a Browser for the current platform.
func NewBrowser(log *zap.Logger) *Browser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Browser{log: log, command: launcher}
}

func launcher(url string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return exec.Command("xdg-open", url)
	}
}

// Open starts the browser on url and returns without waiting for it. The
// launcher process is reaped in the background; its exit status is only logged.
func (b *Browser) Open(url string) error {
	cmd := b.command(url)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "open browser at %s", url)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			b.log.Debug("Browser launcher exited", zap.Error(err))
		}
	}()
	return nil
}
