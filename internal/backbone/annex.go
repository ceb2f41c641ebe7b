package backbone

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/avenalabs/regsub/internal/profile"
	"github.com/avenalabs/regsub/internal/submission"
)

// Meta carries the submission metadata stamped into a region annex.
type Meta struct {
	Applicant    string
	SubmissionID string
}

// section is one required regional sub-section. Sections for which the
// plan carries no leaves are still emitted empty so validators can check
// their presence.
type section struct {
	XMLName xml.Name `xml:"section"`
	Name    string   `xml:"name,attr"`
	Leaves  []Leaf   `xml:"leaf"`
}

// annexDoc is the serialized region annex. The root element name and
// namespace come from the region's profile; everything inside is shared
// across authorities.
type annexDoc struct {
	XMLName      xml.Name
	Xmlns        string   `xml:"xmlns,attr"`
	XmlnsXlink   string   `xml:"xmlns:xlink,attr"`
	DTDVersion   string   `xml:"dtd-version,attr"`
	Sequence     string   `xml:"sequence,attr"`
	Applicant    string   `xml:"sequence-info>applicant"`
	SubmissionID string   `xml:"sequence-info>submission-id"`
	Sections     []section `xml:"section"`
}

// AnnexPath returns the canonical location of a region's annex inside a
// sequence directory.
func AnnexPath(region submission.Region) string {
	return fmt.Sprintf("m1/%s/regional.xml", region)
}

// GenerateAnnex renders the region-specific annex and writes it into the
// sequence directory at AnnexPath. Returns the annex path.
//
// Each authority defines different required sub-sections and a different
// root element/namespace; the per-leaf attribute set is identical across
// regions because every variant goes through the shared leaf builder.
func GenerateAnnex(p *profile.Profile, seq *submission.Sequence, docs []submission.SequenceDocument, meta Meta) (string, error) {
	data, err := RenderAnnex(p, submission.FormatNumber(seq.Number), docs, meta)
	if err != nil {
		return "", err
	}
	rel := AnnexPath(p.Region)
	abs := filepath.Join(seq.BaseDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("write annex: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", fmt.Errorf("write annex: %w", err)
	}
	return abs, nil
}

// RenderAnnex produces the annex document bytes for a region.
func RenderAnnex(p *profile.Profile, number string, docs []submission.SequenceDocument, meta Meta) ([]byte, error) {
	doc := annexDoc{
		XMLName:      xml.Name{Local: p.AnnexRoot},
		Xmlns:        p.AnnexNamespace,
		XmlnsXlink:   XlinkNamespace,
		DTDVersion:   p.DTDVersion,
		Sequence:     number,
		Applicant:    submission.CanonicalTitle(meta.Applicant),
		SubmissionID: meta.SubmissionID,
	}

	regionPrefix := "m1/" + string(p.Region)
	sorted := sortDocs(docs)

	// Required sections first, in profile order, then any extra regional
	// module paths in canonical order.
	emitted := map[string]bool{}
	for _, req := range p.RequiredLeaves {
		doc.Sections = append(doc.Sections, buildSection(req, sorted))
		emitted[req] = true
	}
	for _, d := range sorted {
		mod := submission.CanonicalPath(d.ModulePath)
		if !strings.HasPrefix(mod, regionPrefix) || emitted[mod] {
			continue
		}
		doc.Sections = append(doc.Sections, buildSection(mod, sorted))
		emitted[mod] = true
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal annex: %w", err)
	}
	return append([]byte(xmlHeader), append(out, '\n')...), nil
}

// buildSection collects the leaves whose module path matches the section.
func buildSection(modPath string, sorted []submission.SequenceDocument) section {
	s := section{Name: modPath}
	for _, d := range sorted {
		if submission.CanonicalPath(d.ModulePath) == modPath {
			s.Leaves = append(s.Leaves, buildLeaf(d))
		}
	}
	return s
}
