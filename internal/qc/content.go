package qc

import (
	"bufio"
	"bytes"
	"net/url"
	"regexp"
	"unicode"
)

// pdfMagic marks a PDF artifact; such files claim a text layer via font
// resources.
var pdfMagic = []byte("%PDF")

// textSearchable reports whether the artifact has an extractable text
// layer. A purely visual artifact (raster scan wrapped in a document
// container, or raw binary with no text content) is not searchable.
//
// Heuristic: PDF containers must declare at least one font resource;
// anything else must be predominantly printable text.
func textSearchable(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if bytes.HasPrefix(data, pdfMagic) {
		return bytes.Contains(data, []byte("/Font")) || bytes.Contains(data, []byte("BT"))
	}

	printable := 0
	total := 0
	for _, r := range string(data) {
		total++
		if r == '\n' || r == '\r' || r == '\t' || unicode.IsPrint(r) {
			printable++
		}
	}
	if total == 0 {
		return false
	}
	return printable*10 >= total*7 // at least 70% printable
}

// OutlineEntry is one synthesized navigation-aid node.
type OutlineEntry struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	Line  int    `json:"line"`
}

// Dotted numeric heading: "1.2.3 Stability Data".
var numberedHeading = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.?\s+\S`)

// synthesizeOutline derives bookmark entries from heading-like text lines:
// lines beginning with "SECTION" or a dotted numeric pattern. Absence of
// detectable headings is not an error, only a missed enhancement.
func synthesizeOutline(data []byte) []OutlineEntry {
	var entries []OutlineEntry
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		if bytes.HasPrefix(text, []byte("SECTION")) {
			entries = append(entries, OutlineEntry{Level: 1, Title: string(text), Line: line})
			continue
		}
		if m := numberedHeading.FindSubmatch(text); m != nil {
			level := 1 + bytes.Count(m[1], []byte("."))
			entries = append(entries, OutlineEntry{Level: level, Title: string(text), Line: line})
		}
	}
	return entries
}

// uriPattern finds embedded absolute URIs for the link-integrity scan.
var uriPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s<>"')]+`)

// scanLinks returns every embedded hyperlink that fails to parse as a URI.
// Malformed links are warnings, never errors.
func scanLinks(data []byte) []string {
	var malformed []string
	for _, m := range uriPattern.FindAll(data, -1) {
		raw := string(m)
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			malformed = append(malformed, raw)
		}
	}
	return malformed
}
