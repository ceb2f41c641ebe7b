package backbone

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avenalabs/regsub/internal/profile"
	"github.com/avenalabs/regsub/internal/submission"
)

func basicPlan() []submission.SequenceDocument {
	return []submission.SequenceDocument{
		{
			ModulePath:  "m2/quality",
			FilePath:    "m2/quality/spec.pdf",
			Operation:   submission.OpReplace,
			ContentHash: "def456",
			Title:       "Quality Spec",
			LeafID:      "leaf-0001",
		},
		{
			ModulePath:  "m1/us",
			FilePath:    "m1/us/cover.pdf",
			Operation:   submission.OpNew,
			ContentHash: "abc123",
			Title:       "Cover Letter",
		},
	}
}

func TestRenderBackbone_Golden(t *testing.T) {
	data, err := RenderBackbone("0007", basicPlan())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "backbone_basic", data)
}

// Determinism: the same plan and metadata must produce byte-identical
// output across repeated runs, regardless of input order.
func TestRenderBackbone_Deterministic(t *testing.T) {
	first, err := RenderBackbone("0007", basicPlan())
	require.NoError(t, err)

	// Reverse the plan order; output must not change.
	plan := basicPlan()
	plan[0], plan[1] = plan[1], plan[0]
	second, err := RenderBackbone("0007", plan)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second), "renders differ:\n%s\n---\n%s", first, second)
}

func TestRenderBackbone_LeafIDOnlyOnReplaceDelete(t *testing.T) {
	data, err := RenderBackbone("0001", basicPlan())
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `ID="leaf-0001" operation="replace"`)
	assert.Contains(t, s, `<leaf operation="new"`)
	assert.NotContains(t, s, `ID="" `)
}

func TestGenerateBackbone_RoundTrip(t *testing.T) {
	seq := &submission.Sequence{Number: 7, BaseDir: t.TempDir()}
	p, err := GenerateBackbone(seq, basicPlan())
	require.NoError(t, err)

	info, err := ParseDocument(p)
	require.NoError(t, err)

	assert.Equal(t, "submission-backbone", info.RootName)
	assert.Equal(t, Namespace, info.Namespace)
	assert.Equal(t, BackboneVersion, info.DTDVersion)
	assert.Equal(t, "0007", info.Sequence)
	require.Len(t, info.Leaves, 2)

	// Leaves come back in canonical (module path) order.
	assert.Equal(t, "m1/us/cover.pdf", info.Leaves[0].Href)
	assert.Equal(t, "abc123", info.Leaves[0].Checksum)
	assert.Equal(t, "SHA-256", info.Leaves[0].ChecksumType)
	assert.Equal(t, "Cover Letter", info.Leaves[0].Title)
	assert.Equal(t, "leaf-0001", info.Leaves[1].ID)
}

func TestParseDocument_Malformed(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "index.xml")
	require.NoError(t, os.WriteFile(p, []byte("<backbone><leaf></backbone>"), 0o644))

	_, err := ParseDocument(p)
	require.Error(t, err)
	assert.Equal(t, submission.ErrCodeSchemaValidation, submission.CodeOf(err))
}

func usProfile(t *testing.T) *profile.Profile {
	t.Helper()
	set, err := profile.LoadDefaults()
	require.NoError(t, err)
	p, err := set.Get(submission.RegionUS)
	require.NoError(t, err)
	return p
}

func TestRenderAnnex_Golden(t *testing.T) {
	docs := []submission.SequenceDocument{
		{
			ModulePath:  "m1/us/cover",
			FilePath:    "m1/us/cover.pdf",
			Operation:   submission.OpNew,
			ContentHash: "abc123",
			Title:       "Cover Letter",
		},
	}
	data, err := RenderAnnex(usProfile(t), "0007", docs, Meta{
		Applicant:    "Avena Labs",
		SubmissionID: "SUB-42",
	})
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "annex_us_basic", data)
}

func TestRenderAnnex_EmptyRequiredSectionsEmitted(t *testing.T) {
	data, err := RenderAnnex(usProfile(t), "0001", nil, Meta{Applicant: "A", SubmissionID: "S"})
	require.NoError(t, err)

	s := string(data)
	// Required sections appear even with no leaves, so validators can
	// check their presence.
	assert.Contains(t, s, `<section name="m1/us/cover">`)
	assert.Contains(t, s, `<section name="m1/us/forms">`)
}

func TestRenderAnnex_SharedLeafAttributeSet(t *testing.T) {
	docs := []submission.SequenceDocument{
		{
			ModulePath:  "m1/us/cover",
			FilePath:    "m1/us/cover.pdf",
			Operation:   submission.OpDelete,
			ContentHash: "abc123",
			Title:       "Cover Letter",
			LeafID:      "leaf-0009",
		},
	}
	annex, err := RenderAnnex(usProfile(t), "0002", docs, Meta{Applicant: "A", SubmissionID: "S"})
	require.NoError(t, err)
	bb, err := RenderBackbone("0002", docs)
	require.NoError(t, err)

	// The exact same leaf record appears in both documents: one internal
	// leaf builder feeds every wrapper.
	want := `<leaf ID="leaf-0009" operation="delete" checksum="abc123" checksum-type="SHA-256" xlink:href="m1/us/cover.pdf">`
	assert.Contains(t, string(annex), want)
	assert.Contains(t, string(bb), want)
}
