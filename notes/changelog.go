package notes

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/menghanl/release-gen/internal/fsutil"
)

// Prepend inserts section at the top of the changelog at path, creating the
// file if needed. A leading "# " title line stays first. Existing sections
// are never rewritten.
func Prepend(path, section string) error {
	old, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "read %s", path)
	}
	section = strings.TrimRight(section, "\n") + "\n"

	var b strings.Builder
	body := string(old)
	if strings.HasPrefix(body, "# ") {
		title, rest, _ := strings.Cut(body, "\n")
		b.WriteString(title)
		b.WriteString("\n\n")
		body = strings.TrimLeft(rest, "\n")
	}
	b.WriteString(section)
	if body != "" {
		b.WriteString("\n")
		b.WriteString(body)
	}

	return errors.Wrapf(fsutil.WriteFileAtomic(path, []byte(b.String()), 0o644), "write %s", path)
}
