package backbone

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/avenalabs/regsub/internal/submission"
)

// Namespace is the authority-agnostic backbone namespace.
const Namespace = "http://avenalabs.com/regsub/backbone/v1"

// XlinkNamespace is the href attribute namespace shared by backbone and
// every annex variant.
const XlinkNamespace = "http://www.w3.org/1999/xlink"

// BackboneVersion is the backbone document's declared dtd-version.
const BackboneVersion = "1.0"

// IndexFileName is the backbone's fixed name inside a sequence directory.
const IndexFileName = "index.xml"

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// group is one hierarchical node in the backbone tree, mirroring the
// folder hierarchy on disk.
type group struct {
	XMLName xml.Name `xml:"group"`
	Name    string   `xml:"name,attr"`
	Leaves  []Leaf   `xml:"leaf"`
	Groups  []*group `xml:"group"`
}

// backboneDoc is the serialized backbone root.
type backboneDoc struct {
	XMLName    xml.Name `xml:"submission-backbone"`
	Xmlns      string   `xml:"xmlns,attr"`
	XmlnsXlink string   `xml:"xmlns:xlink,attr"`
	DTDVersion string   `xml:"dtd-version,attr"`
	Sequence   string   `xml:"sequence,attr"`
	Groups     []*group `xml:"group"`
}

// GenerateBackbone renders the master index for a sequence and writes it as
// index.xml in the sequence directory. Returns the backbone path.
func GenerateBackbone(seq *submission.Sequence, docs []submission.SequenceDocument) (string, error) {
	data, err := RenderBackbone(submission.FormatNumber(seq.Number), docs)
	if err != nil {
		return "", err
	}
	p := filepath.Join(seq.BaseDir, IndexFileName)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write backbone: %w", err)
	}
	return p, nil
}

// RenderBackbone produces the backbone document bytes. Split from
// GenerateBackbone so determinism can be asserted without touching disk.
func RenderBackbone(number string, docs []submission.SequenceDocument) ([]byte, error) {
	doc := backboneDoc{
		Xmlns:      Namespace,
		XmlnsXlink: XlinkNamespace,
		DTDVersion: BackboneVersion,
		Sequence:   number,
	}
	doc.Groups = buildTree(sortDocs(docs))

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal backbone: %w", err)
	}
	return append([]byte(xmlHeader), append(out, '\n')...), nil
}

// buildTree folds the sorted plan into nested groups by module path.
// Unseen prefixes create groups on demand, so the tree exactly mirrors the
// folder hierarchy. Input must already be in canonical order: insertion
// order alone determines output order.
func buildTree(docs []submission.SequenceDocument) []*group {
	var roots []*group
	index := map[string]*group{}

	node := func(modPath string) *group {
		if g, ok := index[modPath]; ok {
			return g
		}
		segs := strings.Split(modPath, "/")
		var parent *group
		prefix := ""
		for _, seg := range segs {
			if prefix == "" {
				prefix = seg
			} else {
				prefix = prefix + "/" + seg
			}
			g, ok := index[prefix]
			if !ok {
				g = &group{Name: seg}
				index[prefix] = g
				if parent == nil {
					roots = append(roots, g)
				} else {
					parent.Groups = append(parent.Groups, g)
				}
			}
			parent = g
		}
		return parent
	}

	for _, d := range docs {
		g := node(submission.CanonicalPath(d.ModulePath))
		g.Leaves = append(g.Leaves, buildLeaf(d))
	}
	return roots
}
