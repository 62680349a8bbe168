// Package notes defines the structs for a changelog section and functions to
// generate one from structured commit messages.
package notes

import (
	"fmt"
	"strings"
)

// CommitType is the classification of one commit.
type CommitType string

const (
	Feat  CommitType = "feat"
	Fix   CommitType = "fix"
	Perf  CommitType = "perf"
	Other CommitType = "other"
)

// typePriority orders sections; types missing from this map are not rendered.
var typePriority = map[CommitType]int{
	Feat: 0,
	Fix:  1,
	Perf: 2,
}

var typeToSectionName = map[CommitType]string{
	Feat: "Features",
	Fix:  "Bug Fixes",
	Perf: "Performance",
}

// CommitRecord is one commit parsed for changelog purposes.
type CommitRecord struct {
	Type        CommitType
	Scope       string
	Description string
	Hash        string
}

// Notes contains all the note entries for a given release.
type Notes struct {
	Version  string
	Sections []*Section
}

// Section contains one changelog section, for example "Bug Fixes".
type Section struct {
	Name    string
	Type    CommitType
	Entries []*Entry
}

// Entry contains the info for one entry in the changelog.
type Entry struct {
	Scope       string
	Description string
	Hash        string
	// CommitURL links the short hash when the hosting service is known.
	CommitURL string
}

// ShortHash is the abbreviated commit reference shown in the changelog.
func (e *Entry) ShortHash() string {
	if len(e.Hash) > 7 {
		return e.Hash[:7]
	}
	return e.Hash
}

func (e *Entry) toMarkdown() string {
	var b strings.Builder
	b.WriteString("* ")
	if e.Scope != "" {
		fmt.Fprintf(&b, "**%s:** ", e.Scope)
	}
	b.WriteString(e.Description)
	if e.Hash != "" {
		if e.CommitURL != "" {
			fmt.Fprintf(&b, " ([%s](%s))", e.ShortHash(), e.CommitURL)
		} else {
			fmt.Fprintf(&b, " (%s)", e.ShortHash())
		}
	}
	return b.String()
}

// Markdown renders the section: a level-two heading with the version,
// followed by one level-three heading per non-empty section.
func (n *Notes) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", n.Version)
	for _, s := range n.Sections {
		if len(s.Entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n\n", s.Name)
		for _, e := range s.Entries {
			b.WriteString(e.toMarkdown())
			b.WriteString("\n")
		}
	}
	return b.String()
}
