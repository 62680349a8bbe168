package release

import (
	"context"
	"io"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/menghanl/release-gen/internal/execute"
	"github.com/menghanl/release-gen/internal/manifest"
	"github.com/menghanl/release-gen/internal/relerr"
)

// Publisher pushes one package to the registry.
type Publisher interface {
	Publish(ctx context.Context, pkg manifest.Package) error
}

// Runner runs an external command.
type Runner interface {
	Run(ctx context.Context, opts execute.Options) (string, error)
}

// CommandPublisher publishes by running a command such as "npm publish" in
// the package directory. The registry token is exported to the command as
// NPM_TOKEN and NODE_AUTH_TOKEN.
type CommandPublisher struct {
	Command string
	Token   func() (string, error)
	Runner  Runner
	// Stream, when set, receives the command output as it runs.
	Stream io.Writer
	Log    *zap.Logger
}

// Publish runs the publish command for pkg.
func (p *CommandPublisher) Publish(ctx context.Context, pkg manifest.Package) error {
	name, args, err := execute.Split(p.Command)
	if err != nil {
		return relerr.Publish(pkg.Name(), err)
	}
	var env []string
	if p.Token != nil {
		token, err := p.Token()
		if err != nil {
			return relerr.Publish(pkg.Name(), err)
		}
		if token != "" {
			env = append(env, "NPM_TOKEN="+token, "NODE_AUTH_TOKEN="+token)
		}
	}
	if p.Log != nil {
		p.Log.Info("Publishing package", zap.String("package", pkg.Name()), zap.String("version", pkg.Version()))
	}
	_, err = p.Runner.Run(ctx, execute.Options{
		Command: name,
		Args:    args,
		Dir:     filepath.Dir(pkg.Path),
		Env:     env,
		Stream:  p.Stream,
	})
	if err != nil {
		return relerr.Publish(pkg.Name(), err)
	}
	return nil
}
