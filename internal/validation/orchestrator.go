// Package validation runs the multi-stage check of an assembled sequence:
// fast regional pre-checks, the local structural check of backbone and
// annex, and the slow authority-specific external validator, merged into
// one ordered ValidationResult.
//
// The orchestrator never mutates the sequence directory; it is read-only
// and may be invoked repeatedly for the same sequence state.
package validation

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/avenalabs/regsub/internal/backbone"
	"github.com/avenalabs/regsub/internal/profile"
	"github.com/avenalabs/regsub/internal/submission"
)

// Rule identifiers for locally-detected findings. External validators
// report their own identifiers, remapped only by profile severity
// overrides.
const (
	RuleAnnexMissing      = "RS-001"
	RulePathTooLong       = "RS-002"
	RuleTotalSizeExceeded = "RS-003"
	RuleRequiredLeafEmpty = "RS-004"
	RuleBackboneMalformed = "RS-010"
	RuleDTDVersionWrong   = "RS-011"
	RuleHrefUnresolved    = "RS-012"
	RuleChecksumMismatch  = "RS-013"
	RuleAnnexRootWrong    = "RS-014"
)

// Orchestrator coordinates the validation stages for every region.
type Orchestrator struct {
	profiles profile.Set
	external ExternalValidator
	now      func() time.Time
}

// New creates an Orchestrator. external may be nil when no external
// validator is configured; stage 2 is then skipped entirely (and the
// result says so with an info finding, so a pass without the external
// stage is visible).
func New(profiles profile.Set, external ExternalValidator) *Orchestrator {
	return &Orchestrator{profiles: profiles, external: external, now: time.Now}
}

// Validate checks an assembled sequence directory against its region's
// profile and returns the merged result.
//
// Stage order:
//  1. Regional pre-checks (cheap, filesystem-only). Blocking errors here
//     short-circuit the expensive external call.
//  2. Structural check of the backbone and region annex.
//  3. External authority-specific validator.
//
// An unreachable external validator is returned as an error
// (EXTERNAL_VALIDATOR_UNREACHABLE), never as a passing result.
func (o *Orchestrator) Validate(ctx context.Context, seq *submission.Sequence) (*submission.ValidationResult, error) {
	p, err := o.profiles.Get(seq.Region)
	if err != nil {
		return nil, err
	}

	result := &submission.ValidationResult{RanAt: o.now().UTC()}

	result.Findings = append(result.Findings, o.precheck(seq, p)...)
	structural, err := o.structural(seq, p)
	if err != nil {
		return nil, err
	}
	result.Findings = append(result.Findings, structural...)

	if result.ErrorCount() > 0 {
		slog.Info("validation short-circuited before external stage",
			"sequence", seq.ID, "errors", result.ErrorCount())
		return result, nil
	}

	if o.external == nil {
		result.Findings = append(result.Findings, submission.Finding{
			RuleID:   "RS-000",
			Severity: submission.SeverityInfo,
			Message:  "external validator not configured; stage 2 skipped",
		})
		return result, nil
	}

	external, err := o.external.Validate(ctx, seq.BaseDir, p)
	if err != nil {
		return nil, submission.NewError(submission.ErrCodeExternalValidatorUnreachable,
			"external validator unreachable: %v", err)
	}
	for _, f := range external {
		f.Severity = p.Override(f.RuleID, f.Severity)
		result.Findings = append(result.Findings, f)
	}

	return result, nil
}

// precheck runs the region-specific structural checks that need no
// document parsing: required annex present, path length cap, total size
// cap.
func (o *Orchestrator) precheck(seq *submission.Sequence, p *profile.Profile) []submission.Finding {
	var findings []submission.Finding

	annexRel := backbone.AnnexPath(p.Region)
	if _, err := os.Stat(filepath.Join(seq.BaseDir, filepath.FromSlash(annexRel))); err != nil {
		findings = append(findings, submission.Finding{
			RuleID:   RuleAnnexMissing,
			Severity: submission.SeverityError,
			Message:  fmt.Sprintf("required regional annex %s is missing", annexRel),
			Path:     annexRel,
		})
	}

	var totalSize int64
	filepath.WalkDir(seq.BaseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(seq.BaseDir, path)
		if relErr != nil {
			return nil
		}
		rel = submission.CanonicalPath(rel)
		if len(rel) > p.MaxPathLength {
			findings = append(findings, submission.Finding{
				RuleID:   RulePathTooLong,
				Severity: submission.SeverityError,
				Message:  fmt.Sprintf("path length %d exceeds cap %d", len(rel), p.MaxPathLength),
				Path:     rel,
			})
		}
		if info, infoErr := d.Info(); infoErr == nil {
			totalSize += info.Size()
		}
		return nil
	})

	if totalSize > p.MaxTotalSize {
		findings = append(findings, submission.Finding{
			RuleID:   RuleTotalSizeExceeded,
			Severity: submission.SeverityError,
			Message:  fmt.Sprintf("total size %d exceeds cap %d", totalSize, p.MaxTotalSize),
		})
	}

	return findings
}

// structural parses the backbone and annex and verifies the declared
// schema version, href resolution, and leaf checksums. Failures here are
// always error severity.
func (o *Orchestrator) structural(seq *submission.Sequence, p *profile.Profile) ([]submission.Finding, error) {
	var findings []submission.Finding

	indexPath := filepath.Join(seq.BaseDir, backbone.IndexFileName)
	info, err := backbone.ParseDocument(indexPath)
	if err != nil {
		if submission.CodeOf(err) == submission.ErrCodeSchemaValidation {
			return append(findings, submission.Finding{
				RuleID:   RuleBackboneMalformed,
				Severity: submission.SeverityError,
				Message:  err.Error(),
				Path:     backbone.IndexFileName,
			}), nil
		}
		return nil, err
	}
	if info.DTDVersion != backbone.BackboneVersion {
		findings = append(findings, submission.Finding{
			RuleID:   RuleDTDVersionWrong,
			Severity: submission.SeverityError,
			Message: fmt.Sprintf("backbone declares dtd-version %q, expected %q",
				info.DTDVersion, backbone.BackboneVersion),
			Path: backbone.IndexFileName,
		})
	}
	findings = append(findings, o.checkLeaves(seq, backbone.IndexFileName, info.Leaves)...)

	annexRel := backbone.AnnexPath(p.Region)
	annexAbs := filepath.Join(seq.BaseDir, filepath.FromSlash(annexRel))
	if _, statErr := os.Stat(annexAbs); statErr != nil {
		// Absence already reported by precheck.
		return findings, nil
	}
	annexInfo, err := backbone.ParseDocument(annexAbs)
	if err != nil {
		if submission.CodeOf(err) == submission.ErrCodeSchemaValidation {
			return append(findings, submission.Finding{
				RuleID:   RuleBackboneMalformed,
				Severity: submission.SeverityError,
				Message:  err.Error(),
				Path:     annexRel,
			}), nil
		}
		return nil, err
	}
	if annexInfo.RootName != p.AnnexRoot || annexInfo.Namespace != p.AnnexNamespace {
		findings = append(findings, submission.Finding{
			RuleID:   RuleAnnexRootWrong,
			Severity: submission.SeverityError,
			Message: fmt.Sprintf("annex root is %s (%s), profile requires %s (%s)",
				annexInfo.RootName, annexInfo.Namespace, p.AnnexRoot, p.AnnexNamespace),
			Path: annexRel,
		})
	}
	if annexInfo.DTDVersion != p.DTDVersion {
		findings = append(findings, submission.Finding{
			RuleID:   RuleDTDVersionWrong,
			Severity: submission.SeverityError,
			Message: fmt.Sprintf("annex declares dtd-version %q, profile requires %q",
				annexInfo.DTDVersion, p.DTDVersion),
			Path: annexRel,
		})
	}
	findings = append(findings, o.checkLeaves(seq, annexRel, annexInfo.Leaves)...)

	populated := map[string]bool{}
	for _, sec := range annexInfo.Sections {
		if sec.LeafCount > 0 {
			populated[sec.Name] = true
		}
	}
	for _, req := range p.RequiredLeaves {
		if !populated[req] {
			// Warning, not error: early sequences legitimately leave later
			// required sections for follow-up submissions.
			findings = append(findings, submission.Finding{
				RuleID:   RuleRequiredLeafEmpty,
				Severity: submission.SeverityWarning,
				Message:  fmt.Sprintf("required annex section %q carries no leaves", req),
				Path:     annexRel,
			})
		}
	}

	return findings, nil
}

// checkLeaves verifies that every leaf href resolves inside the sequence
// directory and its checksum matches the file on disk. Delete leaves point
// at content that is absent by design; they are skipped.
func (o *Orchestrator) checkLeaves(seq *submission.Sequence, docRel string, leaves []backbone.Leaf) []submission.Finding {
	var findings []submission.Finding
	for _, leaf := range leaves {
		if leaf.Operation == string(submission.OpDelete) {
			continue
		}
		abs := filepath.Join(seq.BaseDir, filepath.FromSlash(leaf.Href))
		if _, err := os.Stat(abs); err != nil {
			findings = append(findings, submission.Finding{
				RuleID:   RuleHrefUnresolved,
				Severity: submission.SeverityError,
				Message:  fmt.Sprintf("%s: leaf href %q does not resolve", docRel, leaf.Href),
				Path:     leaf.Href,
			})
			continue
		}
		hash, err := submission.HashFile(abs)
		if err != nil {
			findings = append(findings, submission.Finding{
				RuleID:   RuleHrefUnresolved,
				Severity: submission.SeverityError,
				Message:  fmt.Sprintf("%s: leaf %q unreadable: %v", docRel, leaf.Href, err),
				Path:     leaf.Href,
			})
			continue
		}
		if hash != leaf.Checksum {
			findings = append(findings, submission.Finding{
				RuleID:   RuleChecksumMismatch,
				Severity: submission.SeverityError,
				Message:  fmt.Sprintf("%s: leaf %q checksum diverges from file content", docRel, leaf.Href),
				Path:     leaf.Href,
			})
		}
	}
	return findings
}
