package notes

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menghanl/release-gen/internal/gitrepo"
)

type fakeHistory struct {
	tags    map[string]bool
	commits map[string][]gitrepo.Commit
	gotFrom string
}

func (f *fakeHistory) TagExists(_ context.Context, name string) (bool, error) {
	return f.tags[name], nil
}

func (f *fakeHistory) CommitsSince(_ context.Context, from string) ([]gitrepo.Commit, error) {
	f.gotFrom = from
	return f.commits[from], nil
}

func TestParseCommit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		subject string
		want    CommitRecord
	}{
		{"feat: add X", CommitRecord{Type: Feat, Description: "add X", Hash: "h"}},
		{"fix(core): correct Y", CommitRecord{Type: Fix, Scope: "core", Description: "correct Y", Hash: "h"}},
		{"perf(db)!: faster queries", CommitRecord{Type: Perf, Scope: "db", Description: "faster queries", Hash: "h"}},
		{"chore: bump deps", CommitRecord{Type: Other, Description: "bump deps", Hash: "h"}},
		{"Merge branch 'main' into topic", CommitRecord{Type: Other, Description: "Merge branch 'main' into topic", Hash: "h"}},
		{"feat:", CommitRecord{Type: Other, Description: "feat:", Hash: "h"}},
		{"feat (api): spaced", CommitRecord{Type: Other, Description: "feat (api): spaced", Hash: "h"}},
		{"fix : spaced colon", CommitRecord{Type: Other, Description: "fix : spaced colon", Hash: "h"}},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseCommit("h", tt.subject))
		})
	}
}

func TestLastReleasePoint(t *testing.T) {
	t.Parallel()
	h := &fakeHistory{tags: map[string]bool{"v1.0.0": true}}

	got, err := LastReleasePoint(context.Background(), h, "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", got)

	got, err = LastReleasePoint(context.Background(), h, "0.9.0")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestGenerateNotesOrdersByTypeNotTime(t *testing.T) {
	t.Parallel()
	records := []CommitRecord{
		{Type: Perf, Description: "cache lookups", Hash: "3333333333"},
		{Type: Other, Description: "write tests", Hash: "0000000000"},
		{Type: Feat, Description: "add X", Hash: "1111111111"},
		{Type: Fix, Description: "correct Y", Hash: "2222222222"},
		{Type: Feat, Description: "add Z", Hash: "4444444444"},
	}

	n := GenerateNotes("1.1.0", records, Filters{})
	require.Len(t, n.Sections, 3)
	assert.Equal(t, "Features", n.Sections[0].Name)
	assert.Equal(t, "Bug Fixes", n.Sections[1].Name)
	assert.Equal(t, "Performance", n.Sections[2].Name)
	require.Len(t, n.Sections[0].Entries, 2)
	assert.Equal(t, "add X", n.Sections[0].Entries[0].Description, "same type keeps relative order")
	assert.Equal(t, "add Z", n.Sections[0].Entries[1].Description)

	md := n.Markdown()
	assert.Less(t, strings.Index(md, "add X"), strings.Index(md, "correct Y"))
	assert.Less(t, strings.Index(md, "correct Y"), strings.Index(md, "cache lookups"))
	assert.NotContains(t, md, "write tests")
}

func TestGenerateNotesFilters(t *testing.T) {
	t.Parallel()
	records := []CommitRecord{
		{Type: Feat, Scope: "api", Description: "add X", Hash: "abcdef0123456789"},
		{Type: Fix, Description: "internal only", Hash: "fedcba9876543210"},
	}
	n := GenerateNotes("2.0.0", records, Filters{
		Ignore:    func(r CommitRecord) bool { return r.Description == "internal only" },
		CommitURL: func(hash string) string { return "https://github.com/acme/widgets/commit/" + hash },
	})

	want := "## 2.0.0\n" +
		"\n### Features\n\n" +
		"* **api:** add X ([abcdef0](https://github.com/acme/widgets/commit/abcdef0123456789))\n"
	assert.Equal(t, want, n.Markdown())
}

func TestGenerateSection(t *testing.T) {
	t.Parallel()
	h := &fakeHistory{
		tags: map[string]bool{"v1.0.0": true},
		commits: map[string][]gitrepo.Commit{
			"v1.0.0": {
				{Hash: "cccccccccc", Subject: "chore: bump deps"},
				{Hash: "bbbbbbbbbb", Subject: "fix: correct Y"},
				{Hash: "aaaaaaaaaa", Subject: "feat: add X"},
			},
		},
	}

	section, err := GenerateSection(context.Background(), h, "1.0.0", "1.1.0", Filters{})
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", h.gotFrom)

	want := "## 1.1.0\n" +
		"\n### Features\n\n* add X (aaaaaaa)\n" +
		"\n### Bug Fixes\n\n* correct Y (bbbbbbb)\n"
	assert.Equal(t, want, section)
}

func TestGenerateSectionWithoutTagReadsWholeHistory(t *testing.T) {
	t.Parallel()
	h := &fakeHistory{commits: map[string][]gitrepo.Commit{
		"": {{Hash: "aaaaaaaaaa", Subject: "feat: first"}},
	}}
	section, err := GenerateSection(context.Background(), h, "0.0.0", "0.1.0", Filters{})
	require.NoError(t, err)
	assert.Equal(t, "", h.gotFrom)
	assert.Contains(t, section, "* first (aaaaaaa)")
}

func TestPrepend(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "CHANGELOG.md")

	require.NoError(t, Prepend(path, "## 1.0.0\n\n### Features\n\n* a (1111111)\n"))
	require.NoError(t, Prepend(path, "## 1.1.0\n\n### Bug Fixes\n\n* b (2222222)\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "## 1.1.0\n\n### Bug Fixes\n\n* b (2222222)\n" +
		"\n## 1.0.0\n\n### Features\n\n* a (1111111)\n"
	assert.Equal(t, want, string(data))
}

func TestPrependKeepsTitle(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "CHANGELOG.md")
	require.NoError(t, os.WriteFile(path, []byte("# Changelog\n\n## 1.0.0\n\n* old\n"), 0o644))

	require.NoError(t, Prepend(path, "## 1.0.1\n\n* new\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Changelog\n\n## 1.0.1\n\n* new\n\n## 1.0.0\n\n* old\n", string(data))
}
