package release

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/menghanl/release-gen/internal/manifest"
	"github.com/menghanl/release-gen/internal/preflight"
	"github.com/menghanl/release-gen/internal/version"
)

// Validator is the preflight gate.
type Validator interface {
	Validate(ctx context.Context, args []string, opts preflight.Options) (version.BumpType, error)
}

// Discoverer loads the manifest snapshots of a repository.
type Discoverer interface {
	Discover(ctx context.Context, root string) ([]manifest.Package, error)
}

// HostingRelease publishes release notes on the code hosting service.
type HostingRelease interface {
	PublishRelease(ctx context.Context, tag, body string) (string, error)
}

// Announcer shows progress to the operator.
type Announcer interface {
	Printf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Successf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Options are the operator's per-run choices.
type Options struct {
	Changelog bool
	SkipTest  bool
	SkipLint  bool
}

// Orchestrator runs the whole release. Each stage completes before the next
// starts, and the first failure ends the run.
type Orchestrator struct {
	root      string
	validator Validator
	discover  Discoverer
	tx        *Transaction
	publisher Publisher
	// hosting may be nil.
	hosting HostingRelease
	console Announcer
	log     *zap.Logger

	state State
	data  *Data
}

// NewOrchestrator wires an Orchestrator for the repository at root.
func NewOrchestrator(root string, v Validator, d Discoverer, tx *Transaction, p Publisher, hosting HostingRelease, console Announcer, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		root:      root,
		validator: v,
		discover:  d,
		tx:        tx,
		publisher: p,
		hosting:   hosting,
		console:   console,
		log:       log,
	}
}

// State returns the stage the last run reached.
func (o *Orchestrator) State() State { return o.state }

// Data returns the plan of the last run, or nil if planning was not reached.
func (o *Orchestrator) Data() *Data { return o.data }

func (o *Orchestrator) enter(s State) {
	o.log.Info("Release stage", zap.Stringer("from", o.state), zap.Stringer("to", s))
	o.state = s
}

// Run validates args, plans the release, updates the repository and
// publishes every public package.
func (o *Orchestrator) Run(ctx context.Context, args []string, opts Options) (err error) {
	o.state = Validating
	o.data = nil
	defer func() {
		if err != nil {
			o.log.Debug("Release failed", zap.Stringer("stage", o.state), zap.Error(err))
			o.state = Failed
		}
	}()

	bump, err := o.validator.Validate(ctx, args, preflight.Options{SkipTest: opts.SkipTest, SkipLint: opts.SkipLint})
	if err != nil {
		return err
	}

	o.enter(ComputingPlan)
	pkgs, err := o.discover.Discover(ctx, o.root)
	if err != nil {
		return err
	}
	d, err := NewData(bump, pkgs, PlanOptions{Changelog: opts.Changelog, SkipTest: opts.SkipTest, SkipLint: opts.SkipLint})
	if err != nil {
		return err
	}
	o.data = d
	o.announce(d)

	o.enter(MutatingRepository)
	section, err := o.tx.Run(ctx, d)
	if err != nil {
		return err
	}

	o.enter(Publishing)
	for _, p := range d.PublishOrder() {
		if err := o.publisher.Publish(ctx, p); err != nil {
			return err
		}
		o.console.Successf("Published %s@%s", p.Name(), d.NewVersion())
	}
	o.hostingRelease(ctx, d, section)

	o.enter(Done)
	o.console.Successf("Released %s", d.Tag())
	return nil
}

func (o *Orchestrator) announce(d *Data) {
	o.console.Infof("Releasing %s -> %s (%s)", d.CurrentVersion(), d.NewVersion(), d.Bump())
	o.console.Printf("Manifests:\n")
	for _, p := range d.Packages() {
		rel, err := filepath.Rel(o.root, p.Path)
		if err != nil {
			rel = p.Path
		}
		o.console.Printf("  %s (%s)\n", rel, p.Name())
	}
	var names []string
	for _, p := range d.PublishOrder() {
		names = append(names, p.Name())
	}
	if len(names) == 0 {
		o.console.Printf("Publish order: nothing to publish\n")
		return
	}
	o.console.Printf("Publish order: %s\n", strings.Join(names, ", "))
	if cycle := d.PublishCycle(); len(cycle) > 0 {
		o.log.Warn("Workspace dependency cycle", zap.Strings("publishedEarly", cycle))
		o.console.Warnf("Dependency cycle: %s published before its workspace dependencies", strings.Join(cycle, ", "))
	}
}

// hostingRelease is best effort: the packages are already on the registry.
func (o *Orchestrator) hostingRelease(ctx context.Context, d *Data, section string) {
	if o.hosting == nil {
		return
	}
	body := section
	if body == "" {
		body = d.Tag()
	}
	u, err := o.hosting.PublishRelease(ctx, d.Tag(), body)
	if err != nil {
		o.log.Warn("Could not publish hosting release", zap.String("tag", d.Tag()), zap.Error(err))
		o.console.Warnf("Could not create the GitHub release for %s: %v", d.Tag(), err)
		return
	}
	o.console.Successf("GitHub release: %s", u)
}
