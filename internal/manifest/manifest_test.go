package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSetVersionPreservesEverythingElse(t *testing.T) {
	t.Parallel()
	in := "{\n  \"name\": \"widgets\",\n  \"version\": \"1.0.0\",\n  \"scripts\": {\"test\": \"jest\"},\n  \"zeta\": [1, 2],\n  \"alpha\": true\n}\n"
	want := "{\n  \"name\": \"widgets\",\n  \"version\": \"1.1.0\",\n  \"scripts\": {\"test\": \"jest\"},\n  \"zeta\": [1, 2],\n  \"alpha\": true\n}\n"

	out, err := SetVersion([]byte(in), "1.1.0")
	require.NoError(t, err)
	assert.Equal(t, want, string(out))
}

func TestSetVersionAddsMissingField(t *testing.T) {
	t.Parallel()
	out, err := SetVersion([]byte(`{"name":"x"}`), "0.1.0")
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", Package{Content: out}.Version())
	assert.Equal(t, "x", Package{Content: out}.Name())
}

func TestSetVersionRejectsInvalidJSON(t *testing.T) {
	t.Parallel()
	_, err := SetVersion([]byte(`{"name":`), "1.0.0")
	assert.Error(t, err)
}

func TestPackageFields(t *testing.T) {
	t.Parallel()
	p := Package{Content: []byte(`{
  "name": "@acme/app",
  "version": "2.3.4",
  "private": true,
  "dependencies": {"@acme/core": "^2.0.0", "left-pad": "1"},
  "devDependencies": {"@acme/core": "^2.0.0", "jest": "29"},
  "peerDependencies": {"react": "18"}
}`)}
	assert.Equal(t, "@acme/app", p.Name())
	assert.Equal(t, "2.3.4", p.Version())
	assert.True(t, p.Private())
	assert.Equal(t, []string{"@acme/core", "left-pad", "react"}, p.DependencyNames(), "devDependencies do not count")
}

func TestWorkspacesForms(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"packages/*"}, Package{Content: []byte(`{"workspaces":["packages/*"]}`)}.Workspaces())
	assert.Equal(t, []string{"libs/*", "apps/*"}, Package{Content: []byte(`{"workspaces":{"packages":["libs/*","apps/*"]}}`)}.Workspaces())
	assert.Empty(t, Package{Content: []byte(`{"name":"solo"}`)}.Workspaces())
}

func TestDiscover(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{"name":"mono-root","version":"1.0.0","workspaces":["packages/*","tools/**","!packages/legacy"]}`)
	writeFile(t, filepath.Join(root, "packages", "b", "package.json"), `{"name":"b","version":"1.0.0"}`)
	writeFile(t, filepath.Join(root, "packages", "a", "package.json"), `{"name":"a","version":"1.0.0"}`)
	writeFile(t, filepath.Join(root, "packages", "legacy", "package.json"), `{"name":"legacy","version":"0.1.0"}`)
	writeFile(t, filepath.Join(root, "packages", "empty", "README.md"), "no manifest here")
	writeFile(t, filepath.Join(root, "tools", "deep", "cli", "package.json"), `{"name":"cli","version":"1.0.0"}`)
	writeFile(t, filepath.Join(root, "tools", "deep", "cli", "node_modules", "lodash", "package.json"), `{"name":"lodash","version":"4.17.21"}`)

	s := NewSynchronizer(2, zaptest.NewLogger(t))
	pkgs, err := s.Discover(context.Background(), root)
	require.NoError(t, err)

	for _, p := range pkgs {
		assert.True(t, filepath.IsAbs(p.Path))
	}
	assert.Equal(t, []string{"mono-root", "a", "b", "cli"}, names(pkgs))
}

func TestDiscoverSkipsNodeModules(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{"name":"r","version":"1.0.0","workspaces":["packages/**"]}`)
	writeFile(t, filepath.Join(root, "packages", "a", "package.json"), `{"name":"a","version":"1.0.0"}`)
	writeFile(t, filepath.Join(root, "packages", "a", "node_modules", "lodash", "package.json"), `{"name":"lodash","version":"4.17.21"}`)
	writeFile(t, filepath.Join(root, "packages", "node_modules", "x", "package.json"), `{"name":"x","version":"0.0.1"}`)

	pkgs, err := NewSynchronizer(2, nil).Discover(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"r", "a"}, names(pkgs))
}

func TestDiscoverSinglePackage(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{"name":"solo","version":"0.3.0"}`)

	pkgs, err := NewSynchronizer(4, nil).Discover(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "0.3.0", pkgs[0].Version())
}

func TestDiscoverInvalidWorkspaceManifest(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{"name":"r","workspaces":["packages/*"]}`)
	writeFile(t, filepath.Join(root, "packages", "bad", "package.json"), `{"name":`)

	_, err := NewSynchronizer(4, nil).Discover(context.Background(), root)
	assert.Error(t, err)
}

func TestBumpAll(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	contents := map[string]string{
		"package.json":            "{\n  \"name\": \"r\",\n  \"version\": \"1.0.0\",\n  \"private\": true\n}\n",
		"packages/a/package.json": "{\"version\":\"1.0.0\",\"name\":\"a\",\"only-in-a\":{\"x\":1}}",
		"packages/b/package.json": "{\n\t\"name\": \"b\",\n\t\"version\": \"0.9.0\",\n\t\"files\": [\"dist\"]\n}",
	}
	var pkgs []Package
	for rel, c := range contents {
		path := filepath.Join(root, filepath.FromSlash(rel))
		writeFile(t, path, c)
		pkgs = append(pkgs, Package{Path: path, Content: []byte(c)})
	}

	s := NewSynchronizer(2, zaptest.NewLogger(t))
	require.NoError(t, s.BumpAll(context.Background(), pkgs, "1.1.0"))

	for rel, before := range contents {
		after, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, "1.1.0", Package{Content: after}.Version(), rel)

		want, err := SetVersion([]byte(before), "1.1.0")
		require.NoError(t, err)
		assert.Equal(t, string(want), string(after), rel)
	}
}

func names(pkgs []Package) []string {
	var out []string
	for _, p := range pkgs {
		out = append(out, p.Name())
	}
	return out
}

func TestPublishOrder(t *testing.T) {
	t.Parallel()
	pkgs := []Package{
		{Path: "/r/package.json", Content: []byte(`{"name":"root","private":true}`)},
		{Path: "/r/packages/app/package.json", Content: []byte(`{"name":"app","dependencies":{"ui":"*","core":"*"}}`)},
		{Path: "/r/packages/core/package.json", Content: []byte(`{"name":"core","dependencies":{"lodash":"4"}}`)},
		{Path: "/r/packages/ui/package.json", Content: []byte(`{"name":"ui","peerDependencies":{"core":"*"}}`)},
		{Path: "/r/packages/zed/package.json", Content: []byte(`{"name":"zed"}`)},
	}
	order, broken := PublishOrder(pkgs)
	assert.Empty(t, broken)
	assert.Equal(t, []string{"core", "ui", "app", "zed"}, names(order), "private root is not published")
}

func TestPublishOrderIgnoresDevAndPrivateCycles(t *testing.T) {
	t.Parallel()
	order, broken := PublishOrder([]Package{
		{Path: "/r/packages/core/package.json", Content: []byte(`{"name":"core","devDependencies":{"test-utils":"*"}}`)},
		{Path: "/r/packages/test-utils/package.json", Content: []byte(`{"name":"test-utils","private":true,"dependencies":{"core":"*"}}`)},
		{Path: "/r/packages/web/package.json", Content: []byte(`{"name":"web","dependencies":{"core":"*"},"devDependencies":{"web-e2e":"*"}}`)},
		{Path: "/r/packages/web-e2e/package.json", Content: []byte(`{"name":"web-e2e","dependencies":{"web":"*"}}`)},
	})
	assert.Empty(t, broken)
	assert.Equal(t, []string{"core", "web", "web-e2e"}, names(order))
}

func TestPublishOrderBreaksRuntimeCycleByPath(t *testing.T) {
	t.Parallel()
	order, broken := PublishOrder([]Package{
		{Path: "/b", Content: []byte(`{"name":"b","dependencies":{"a":"*"}}`)},
		{Path: "/a", Content: []byte(`{"name":"a","peerDependencies":{"b":"*"}}`)},
		{Path: "/c", Content: []byte(`{"name":"c","dependencies":{"b":"*"}}`)},
		{Path: "/d", Content: []byte(`{"name":"d"}`)},
	})
	assert.Equal(t, []string{"a"}, broken)
	assert.Equal(t, []string{"d", "a", "b", "c"}, names(order))
}
