package validation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avenalabs/regsub/internal/backbone"
	"github.com/avenalabs/regsub/internal/profile"
	"github.com/avenalabs/regsub/internal/submission"
)

// assembleSequence lays out a minimal valid us sequence: one artifact,
// backbone, and annex with matching checksums.
func assembleSequence(t *testing.T) (*submission.Sequence, profile.Set) {
	t.Helper()
	set, err := profile.LoadDefaults()
	require.NoError(t, err)
	p, err := set.Get(submission.RegionUS)
	require.NoError(t, err)

	seq := &submission.Sequence{ID: 1, Region: submission.RegionUS, Number: 7, BaseDir: t.TempDir()}

	content := []byte("cover letter content")
	rel := "m1/us/cover.pdf"
	abs := filepath.Join(seq.BaseDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, content, 0o644))

	docs := []submission.SequenceDocument{{
		ModulePath:  "m1/us/cover",
		FilePath:    rel,
		Operation:   submission.OpNew,
		ContentHash: submission.HashBytes(content),
		Title:       "Cover Letter",
	}}

	_, err = backbone.GenerateBackbone(seq, docs)
	require.NoError(t, err)
	_, err = backbone.GenerateAnnex(p, seq, docs, backbone.Meta{Applicant: "A", SubmissionID: "S"})
	require.NoError(t, err)

	return seq, set
}

func TestValidate_PassesCleanSequence(t *testing.T) {
	seq, set := assembleSequence(t)

	o := New(set, StaticValidator{})
	result, err := o.Validate(context.Background(), seq)
	require.NoError(t, err)

	assert.Equal(t, 0, result.ErrorCount())
	assert.True(t, result.Passed())
}

func TestValidate_Idempotent(t *testing.T) {
	seq, set := assembleSequence(t)

	o := New(set, StaticValidator{})
	first, err := o.Validate(context.Background(), seq)
	require.NoError(t, err)
	second, err := o.Validate(context.Background(), seq)
	require.NoError(t, err)

	assert.Equal(t, first.Findings, second.Findings)
}

func TestValidate_MissingAnnexShortCircuitsExternal(t *testing.T) {
	seq, set := assembleSequence(t)
	require.NoError(t, os.Remove(
		filepath.Join(seq.BaseDir, filepath.FromSlash(backbone.AnnexPath(submission.RegionUS)))))

	// An unreachable external validator must not matter: blocking local
	// errors skip stage 2 entirely.
	o := New(set, StaticValidator{Unreachable: true})
	result, err := o.Validate(context.Background(), seq)
	require.NoError(t, err)

	require.Greater(t, result.ErrorCount(), 0)
	assert.Equal(t, RuleAnnexMissing, result.Findings[0].RuleID)
}

func TestValidate_ChecksumMismatch(t *testing.T) {
	seq, set := assembleSequence(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(seq.BaseDir, "m1", "us", "cover.pdf"), []byte("tampered"), 0o644))

	o := New(set, StaticValidator{})
	result, err := o.Validate(context.Background(), seq)
	require.NoError(t, err)

	var rules []string
	for _, f := range result.Findings {
		if f.Severity == submission.SeverityError {
			rules = append(rules, f.RuleID)
		}
	}
	assert.Contains(t, rules, RuleChecksumMismatch)
}

func TestValidate_MalformedBackbone(t *testing.T) {
	seq, set := assembleSequence(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(seq.BaseDir, backbone.IndexFileName), []byte("<oops"), 0o644))

	o := New(set, StaticValidator{})
	result, err := o.Validate(context.Background(), seq)
	require.NoError(t, err)

	require.NotEmpty(t, result.Findings)
	assert.Equal(t, RuleBackboneMalformed, result.Findings[0].RuleID)
	assert.Equal(t, submission.SeverityError, result.Findings[0].Severity)
}

func TestValidate_ExternalUnreachableIsNotAPass(t *testing.T) {
	seq, set := assembleSequence(t)

	o := New(set, StaticValidator{Unreachable: true})
	result, err := o.Validate(context.Background(), seq)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, submission.ErrCodeExternalValidatorUnreachable, submission.CodeOf(err))
}

func TestValidate_ExternalFindingsMergedWithOverrides(t *testing.T) {
	seq, set := assembleSequence(t)

	// The us profile downgrades RS-104 to warning.
	o := New(set, StaticValidator{Findings: []submission.Finding{
		{RuleID: "RS-104", Severity: submission.SeverityError, Message: "applicant contact empty"},
		{RuleID: "RS-200", Severity: submission.SeverityError, Message: "real problem"},
	}})
	result, err := o.Validate(context.Background(), seq)
	require.NoError(t, err)

	bySeverity := map[string]submission.Severity{}
	for _, f := range result.Findings {
		bySeverity[f.RuleID] = f.Severity
	}
	assert.Equal(t, submission.SeverityWarning, bySeverity["RS-104"])
	assert.Equal(t, submission.SeverityError, bySeverity["RS-200"])
	assert.Equal(t, 1, result.ErrorCount())
}

func TestValidate_PathLengthCap(t *testing.T) {
	seq, set := assembleSequence(t)

	long := strings.Repeat("d", 100) + "/" + strings.Repeat("e", 100) + "/" + strings.Repeat("f", 60) + ".pdf"
	abs := filepath.Join(seq.BaseDir, filepath.FromSlash(long))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte("x"), 0o644))

	o := New(set, StaticValidator{Unreachable: true})
	result, err := o.Validate(context.Background(), seq)
	require.NoError(t, err, "blocking precheck errors skip the external call")

	var rules []string
	for _, f := range result.Findings {
		rules = append(rules, f.RuleID)
	}
	assert.Contains(t, rules, RulePathTooLong)
}

func TestParseFindings(t *testing.T) {
	out := []byte("RS-104|warning|m1/us/cover.pdf|contact missing\n\nRS-201|error||bad leaf order\n")
	findings, err := ParseFindings(out)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "RS-104", findings[0].RuleID)
	assert.Equal(t, submission.SeverityWarning, findings[0].Severity)
	assert.Equal(t, "m1/us/cover.pdf", findings[0].Path)
	assert.Equal(t, "bad leaf order", findings[1].Message)
}

func TestParseFindings_Malformed(t *testing.T) {
	_, err := ParseFindings([]byte("not a finding\n"))
	require.Error(t, err)

	_, err = ParseFindings([]byte("RS-1|catastrophic|p|m\n"))
	require.Error(t, err)
}
