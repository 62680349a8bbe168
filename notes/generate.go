package notes

import (
	"context"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	cc "github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"

	"github.com/menghanl/release-gen/internal/gitrepo"
)

// History is the read side of the repository needed to build a section.
type History interface {
	TagExists(ctx context.Context, name string) (bool, error)
	CommitsSince(ctx context.Context, from string) ([]gitrepo.Commit, error)
}

// Filters customizes which records end up in the notes and how they link.
type Filters struct {
	// If Ignore returns true, the record will be excluded from the notes.
	Ignore func(r CommitRecord) bool
	// CommitURL, if set, returns the web URL of a commit hash.
	CommitURL func(hash string) string
}

// ParseCommit classifies a commit subject of the form "type(scope): description".
// Subjects that do not follow the grammar are classified Other with the whole
// subject as description.
func ParseCommit(hash, subject string) CommitRecord {
	subject = strings.TrimSpace(subject)
	rec := CommitRecord{Type: Other, Description: subject, Hash: hash}

	m := parser.NewMachine(cc.WithTypes(cc.TypesFreeForm))
	msg, err := m.Parse([]byte(subject))
	if err != nil {
		return rec
	}
	commit, ok := msg.(*cc.ConventionalCommit)
	if !ok || commit.Type == "" || strings.TrimSpace(commit.Description) == "" {
		return rec
	}
	// The type must be followed directly by "(", "!" or ":".
	if rest := strings.TrimPrefix(subject, commit.Type); rest == subject || rest == "" || !strings.ContainsRune("(!:", rune(rest[0])) {
		return rec
	}
	switch t := CommitType(strings.ToLower(commit.Type)); t {
	case Feat, Fix, Perf:
		rec.Type = t
	}
	if commit.Scope != nil {
		rec.Scope = *commit.Scope
	}
	rec.Description = strings.TrimSpace(commit.Description)
	return rec
}

// LastReleasePoint returns the tag "v<version>" if it exists, or "" meaning
// the range starts at the beginning of history.
func LastReleasePoint(ctx context.Context, h History, version string) (string, error) {
	tag := "v" + version
	ok, err := h.TagExists(ctx, tag)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return tag, nil
}

// GenerateNotes groups the feat, fix and perf records into sections ordered
// Features, Bug Fixes, Performance. Records of the same type keep their
// relative order.
func GenerateNotes(version string, records []CommitRecord, filters Filters) *Notes {
	kept := make([]CommitRecord, 0, len(records))
	for _, r := range records {
		if _, ok := typePriority[r.Type]; !ok {
			continue
		}
		if filters.Ignore != nil && filters.Ignore(r) {
			continue
		}
		kept = append(kept, r)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return typePriority[kept[i].Type] < typePriority[kept[j].Type]
	})

	n := &Notes{Version: version}
	var current *Section
	for _, r := range kept {
		if current == nil || current.Type != r.Type {
			current = &Section{Name: typeToSectionName[r.Type], Type: r.Type}
			n.Sections = append(n.Sections, current)
		}
		e := &Entry{Scope: r.Scope, Description: r.Description, Hash: r.Hash}
		if filters.CommitURL != nil && r.Hash != "" {
			e.CommitURL = filters.CommitURL(r.Hash)
		}
		current.Entries = append(current.Entries, e)
	}
	return n
}

// GenerateSection reads the commits since the v<currentVersion> tag (or the
// whole history when that tag is missing) and renders the changelog section
// for newVersion.
func GenerateSection(ctx context.Context, h History, currentVersion, newVersion string, filters Filters) (string, error) {
	from, err := LastReleasePoint(ctx, h, currentVersion)
	if err != nil {
		return "", errors.Wrap(err, "resolve last release")
	}
	commits, err := h.CommitsSince(ctx, from)
	if err != nil {
		return "", errors.Wrap(err, "read commit log")
	}
	records := make([]CommitRecord, 0, len(commits))
	for _, c := range commits {
		records = append(records, ParseCommit(c.Hash, c.Subject))
	}
	return GenerateNotes(newVersion, records, filters).Markdown(), nil
}
