// Package manifest discovers package manifests and keeps their version
// fields in step.
//
// Manifests are handled as raw bytes. Fields are read with gjson and the
// version is rewritten in place with sjson, so everything else in the file
// (key order, indentation, unknown keys) survives untouched.
package manifest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"github.com/menghanl/release-gen/internal/fsutil"
)

// FileName is the manifest file looked up in every package directory.
const FileName = "package.json"

// Package is a snapshot of one manifest taken at discovery time.
type Package struct {
	// Path is the absolute path of the manifest file.
	Path    string
	Content []byte
}

// Name returns the package name.
func (p Package) Name() string { return gjson.GetBytes(p.Content, "name").String() }

// Version returns the package version.
func (p Package) Version() string { return gjson.GetBytes(p.Content, "version").String() }

// Private reports whether the package is excluded from publishing.
func (p Package) Private() bool { return gjson.GetBytes(p.Content, "private").Bool() }

// devDependencies are left out: they are not needed to install a published
// package, so they do not constrain publish order.
var dependencyFields = []string{"dependencies", "peerDependencies", "optionalDependencies"}

// DependencyNames returns the names of the packages this one needs at install
// time, sorted and without duplicates.
func (p Package) DependencyNames() []string {
	seen := map[string]bool{}
	for _, f := range dependencyFields {
		gjson.GetBytes(p.Content, f).ForEach(func(k, _ gjson.Result) bool {
			seen[k.String()] = true
			return true
		})
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Workspaces returns the workspace patterns of a root manifest. Both the
// array form and the {"packages": [...]} form are accepted.
func (p Package) Workspaces() []string {
	ws := gjson.GetBytes(p.Content, "workspaces")
	if ws.IsObject() {
		ws = ws.Get("packages")
	}
	var patterns []string
	for _, v := range ws.Array() {
		if s := v.String(); s != "" {
			patterns = append(patterns, s)
		}
	}
	return patterns
}

// SetVersion returns a copy of content with only the version value replaced.
func SetVersion(content []byte, version string) ([]byte, error) {
	if !gjson.ValidBytes(content) {
		return nil, errors.New("manifest is not valid JSON")
	}
	out, err := sjson.SetBytes(content, "version", version)
	if err != nil {
		return nil, errors.Wrap(err, "set version")
	}
	return out, nil
}

// Synchronizer reads and rewrites manifests with bounded concurrency.
type Synchronizer struct {
	concurrency int
	log         *zap.Logger
}

// NewSynchronizer returns a Synchronizer running at most concurrency file
// operations at once.
func NewSynchronizer(concurrency int, log *zap.Logger) *Synchronizer {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{concurrency: concurrency, log: log}
}

// Discover loads the root manifest of root followed by the manifest of every
// workspace directory it declares, ordered by path.
func (s *Synchronizer) Discover(ctx context.Context, root string) ([]Package, error) {
	rootPath := filepath.Join(root, FileName)
	content, err := os.ReadFile(rootPath)
	if err != nil {
		return nil, errors.Wrap(err, "read root manifest")
	}
	if !gjson.ValidBytes(content) {
		return nil, errors.Newf("%s is not valid JSON", rootPath)
	}
	rootPkg := Package{Path: rootPath, Content: content}

	paths, err := workspaceManifests(root, rootPkg.Workspaces())
	if err != nil {
		return nil, err
	}

	pkgs := make([]Package, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "read manifest %s", path)
			}
			if !gjson.ValidBytes(data) {
				return errors.Newf("%s is not valid JSON", path)
			}
			pkgs[i] = Package{Path: path, Content: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.Debug("Discovered manifests", zap.Int("count", len(pkgs)+1))
	return append([]Package{rootPkg}, pkgs...), nil
}

// workspaceManifests expands workspace patterns relative to root into the
// sorted, de-duplicated list of manifest paths they contain. Patterns starting
// with '!' exclude directories. Anything under node_modules is skipped.
func workspaceManifests(root string, patterns []string) ([]string, error) {
	fsys := os.DirFS(root)
	include := map[string]bool{}
	var exclude []string
	for _, pat := range patterns {
		pat = filepath.ToSlash(filepath.Clean(pat))
		if len(pat) > 0 && pat[0] == '!' {
			exclude = append(exclude, pat[1:])
			continue
		}
		if pat == "." {
			continue
		}
		if !doublestar.ValidatePattern(pat) {
			return nil, errors.Newf("invalid workspace pattern %q", pat)
		}
		matches, err := doublestar.Glob(fsys, pat+"/"+FileName)
		if err != nil {
			return nil, errors.Wrapf(err, "expand workspace pattern %q", pat)
		}
		for _, m := range matches {
			include[m] = true
		}
	}

	var paths []string
	for m := range include {
		if m == FileName || inNodeModules(m) || excluded(m, exclude) {
			continue
		}
		paths = append(paths, filepath.Join(root, filepath.FromSlash(m)))
	}
	sort.Strings(paths)
	return paths, nil
}

func inNodeModules(manifest string) bool {
	for _, seg := range strings.Split(manifest, "/") {
		if seg == "node_modules" {
			return true
		}
	}
	return false
}

func excluded(manifest string, patterns []string) bool {
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(manifest)))
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, dir); ok {
			return true
		}
	}
	return false
}

// BumpAll writes version into every manifest. Each file is replaced
// atomically; a failure on one file does not undo the others.
func (s *Synchronizer) BumpAll(ctx context.Context, pkgs []Package, version string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range pkgs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := SetVersion(p.Content, version)
			if err != nil {
				return errors.Wrapf(err, "bump %s", p.Path)
			}
			if err := fsutil.WriteFileAtomic(p.Path, out, 0o644); err != nil {
				return errors.Wrapf(err, "write %s", p.Path)
			}
			s.log.Debug("Bumped manifest", zap.String("path", p.Path), zap.String("version", version))
			return nil
		})
	}
	return g.Wait()
}
