package backbone

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"github.com/avenalabs/regsub/internal/submission"
)

// DocumentInfo is the parsed shape of a generated backbone or annex,
// as much of it as structural validation needs.
type DocumentInfo struct {
	RootName   string
	Namespace  string
	DTDVersion string
	Sequence   string
	Leaves     []Leaf
	// Sections lists the annex's regional sub-sections, in document
	// order. Empty for backbones, which group by module path instead.
	Sections []SectionInfo
}

// SectionInfo summarizes one annex sub-section.
type SectionInfo struct {
	Name      string
	LeafCount int
}

// ParseDocument reads a backbone or annex back for structural validation.
// It streams the file with xml.Decoder, so a malformed document is
// reported with its offset rather than read fully into memory.
func ParseDocument(path string) (*DocumentInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	info := &DocumentInfo{}
	seenRoot := false
	inSection := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, submission.NewError(submission.ErrCodeSchemaValidation,
				"%s: malformed document: %v", path, err)
		}

		if end, ok := tok.(xml.EndElement); ok {
			if end.Name.Local == "section" {
				inSection = false
			}
			continue
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if !seenRoot {
			seenRoot = true
			info.RootName = start.Name.Local
			for _, a := range start.Attr {
				switch {
				case a.Name.Local == "xmlns" && a.Name.Space == "":
					info.Namespace = a.Value
				case a.Name.Local == "dtd-version":
					info.DTDVersion = a.Value
				case a.Name.Local == "sequence":
					info.Sequence = a.Value
				}
			}
			continue
		}

		switch start.Name.Local {
		case "section":
			sec := SectionInfo{}
			for _, a := range start.Attr {
				if a.Name.Local == "name" {
					sec.Name = a.Value
				}
			}
			info.Sections = append(info.Sections, sec)
			inSection = true
		case "leaf":
			leaf, err := decodeLeaf(dec, start)
			if err != nil {
				return nil, submission.NewError(submission.ErrCodeSchemaValidation,
					"%s: malformed leaf: %v", path, err)
			}
			info.Leaves = append(info.Leaves, leaf)
			if inSection && len(info.Sections) > 0 {
				info.Sections[len(info.Sections)-1].LeafCount++
			}
		}
	}

	if !seenRoot {
		return nil, submission.NewError(submission.ErrCodeSchemaValidation,
			"%s: empty document", path)
	}
	return info, nil
}

// decodeLeaf reads one leaf element. Attribute matching is by local name so
// the xlink prefix on href round-trips.
func decodeLeaf(dec *xml.Decoder, start xml.StartElement) (Leaf, error) {
	var leaf Leaf
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "ID":
			leaf.ID = a.Value
		case "operation":
			leaf.Operation = a.Value
		case "checksum":
			leaf.Checksum = a.Value
		case "checksum-type":
			leaf.ChecksumType = a.Value
		case "href":
			leaf.Href = a.Value
		}
	}

	// Pull the title child, then consume through the closing tag.
	depth := 1
	inTitle := false
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return leaf, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			inTitle = t.Name.Local == "title"
		case xml.EndElement:
			depth--
			inTitle = false
		case xml.CharData:
			if inTitle {
				leaf.Title += string(t)
			}
		}
	}
	return leaf, nil
}
