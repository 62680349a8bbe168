// Package release sequences a release: validate, plan, mutate the
// repository, then publish.
package release

import (
	"github.com/cockroachdb/errors"

	"github.com/menghanl/release-gen/internal/manifest"
	"github.com/menghanl/release-gen/internal/version"
)

// Data is the plan of one release run. It is built once and never modified;
// every later stage reads versions and packages from it.
type Data struct {
	bump             version.BumpType
	currentVersion   string
	newVersion       string
	changelogEnabled bool
	skipTest         bool
	skipLint         bool
	packages         []manifest.Package
	publishOrder     []manifest.Package
	publishCycle     []string
}

// PlanOptions carries the operator's choices into the plan.
type PlanOptions struct {
	Changelog bool
	SkipTest  bool
	SkipLint  bool
}

// NewData computes the plan. pkgs[0] must be the root manifest; its version
// is the current version.
func NewData(bump version.BumpType, pkgs []manifest.Package, opts PlanOptions) (*Data, error) {
	if len(pkgs) == 0 {
		return nil, errors.New("no package manifest found")
	}
	current := pkgs[0].Version()
	if current == "" {
		return nil, errors.Newf("%s has no version field", pkgs[0].Path)
	}
	next, err := version.Next(current, bump)
	if err != nil {
		return nil, err
	}
	order, broken := manifest.PublishOrder(pkgs)
	return &Data{
		bump:             bump,
		currentVersion:   current,
		newVersion:       next,
		changelogEnabled: opts.Changelog,
		skipTest:         opts.SkipTest,
		skipLint:         opts.SkipLint,
		packages:         append([]manifest.Package(nil), pkgs...),
		publishOrder:     order,
		publishCycle:     broken,
	}, nil
}

func (d *Data) Bump() version.BumpType { return d.bump }
func (d *Data) CurrentVersion() string  { return d.currentVersion }
func (d *Data) NewVersion() string      { return d.newVersion }
func (d *Data) ChangelogEnabled() bool  { return d.changelogEnabled }
func (d *Data) SkipTest() bool          { return d.skipTest }
func (d *Data) SkipLint() bool          { return d.skipLint }

// Tag is the release tag, and also the release commit subject.
func (d *Data) Tag() string { return version.Tag(d.newVersion) }

// Packages returns the manifest snapshots, root first.
func (d *Data) Packages() []manifest.Package {
	return append([]manifest.Package(nil), d.packages...)
}

// PublishOrder returns the packages that will be published, dependencies
// first. Private packages are left out.
func (d *Data) PublishOrder() []manifest.Package {
	return append([]manifest.Package(nil), d.publishOrder...)
}

// PublishCycle names the packages published ahead of a workspace dependency
// to break a dependency cycle. It is empty for an acyclic workspace.
func (d *Data) PublishCycle() []string {
	return append([]string(nil), d.publishCycle...)
}
