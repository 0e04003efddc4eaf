// Package pkgentry implements C3: recovering (name, version) from an
// archive entry path of the form NAME-VERSION-REL/files or, for the cache
// format, the bare directory prefix NAME-VERSION-REL.
package pkgentry

import (
	"strings"

	"github.com/dittofile/pkgfile/internal/pkgfileerrs"
)

// Package is the (name, version) pair recovered from an entry name. It is a
// view into the original entry-name string; callers that retain it beyond
// the current scan should copy it (§3 "Package is a transient value").
type Package struct {
	Name    string
	Version string
}

// ParseEntryName recovers Package from an entry whose name is
// "NAME-VERSION-REL/files" (the upstream tar format, §4.3) or, with no
// trailing "/files", "NAME-VERSION-REL" directly (the cache cpio format,
// §6). Within the directory-prefix portion, the second-from-right '-'
// separates NAME from VERSION-REL. Fewer than two '-' is BadEntryName.
func ParseEntryName(entryName string) (Package, error) {
	prefix := DirPrefix(entryName)

	last := strings.LastIndexByte(prefix, '-')
	if last < 0 {
		return Package{}, pkgfileerrs.NewBadEntryName(entryName)
	}
	secondLast := strings.LastIndexByte(prefix[:last], '-')
	if secondLast < 0 {
		return Package{}, pkgfileerrs.NewBadEntryName(entryName)
	}

	return Package{
		Name:    prefix[:secondLast],
		Version: prefix[secondLast+1:],
	}, nil
}

// DirPrefix returns the portion of entryName before its last '/', i.e.
// "NAME-VERSION-REL" for a tar-style "NAME-VERSION-REL/files" entry, or
// entryName unchanged if it carries no slash at all (the cache format).
func DirPrefix(entryName string) string {
	if p := strings.LastIndexByte(entryName, '/'); p >= 0 {
		return entryName[:p]
	}
	return entryName
}
