// Package backbone generates the submission's master index document and
// the region-specific annex documents from a document plan.
//
// All generation is deterministic: given the same SequenceDocument list and
// metadata, byte-identical output is produced (stable element ordering,
// fixed attribute ordering). Golden tests enforce this.
package backbone

import (
	"sort"

	"github.com/avenalabs/regsub/internal/submission"
)

// Leaf is one document entry inside a backbone or annex. Every region
// wrapper shares this exact attribute set; only the surrounding root
// element and sub-section scaffolding differ per authority.
type Leaf struct {
	// ID is present only for replace/delete operations, referencing the
	// identifier assigned when the leaf was first introduced.
	ID           string `xml:"ID,attr,omitempty"`
	Operation    string `xml:"operation,attr"`
	Checksum     string `xml:"checksum,attr"`
	ChecksumType string `xml:"checksum-type,attr"`
	Href         string `xml:"xlink:href,attr"`
	Title        string `xml:"title"`
}

// buildLeaf converts one SequenceDocument into its leaf record. This is the
// single leaf builder reused by the backbone and every region wrapper.
func buildLeaf(d submission.SequenceDocument) Leaf {
	l := Leaf{
		Operation:    string(d.Operation),
		Checksum:     d.ContentHash,
		ChecksumType: submission.HashAlgorithm,
		Href:         submission.CanonicalPath(d.FilePath),
		Title:        submission.CanonicalTitle(d.Title),
	}
	if d.Operation.NeedsLeafRef() {
		l.ID = d.LeafID
	}
	return l
}

// sortDocs orders a plan canonically: by module path, then file path, then
// operation. Generation iterates this order everywhere, which is what makes
// repeated runs byte-identical.
func sortDocs(docs []submission.SequenceDocument) []submission.SequenceDocument {
	sorted := make([]submission.SequenceDocument, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ModulePath != b.ModulePath {
			return a.ModulePath < b.ModulePath
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.Operation < b.Operation
	})
	return sorted
}
