package submission

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CanonicalPath converts an on-disk relative path to its canonical form:
// slash-separated, cleaned, NFC-normalized. This is the ONLY form that may
// appear in manifests, backbone hrefs, and leaf records, so that generated
// output is byte-identical across platforms and filesystems.
func CanonicalPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	return norm.NFC.String(p)
}

// CanonicalTitle NFC-normalizes a human title and collapses surrounding
// whitespace. Titles feed generated leaf records, so they follow the same
// normalization rule as paths.
func CanonicalTitle(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
