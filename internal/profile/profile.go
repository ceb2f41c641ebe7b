// Package profile loads and compiles per-authority submission profiles.
//
// Profiles are authored in CUE and compiled at startup via the CUE Go API
// (not a CLI subprocess). A compiled Profile is immutable reference data:
// schema version, annex root/namespace, required annex leaves, size/path
// caps, and per-rule severity overrides.
//
// The required-leaf sets, size caps, and gateway naming are reference data
// precisely because each authority publishes its own contract; they are
// edited in the .cue files, never in Go code.
package profile

import (
	"github.com/avenalabs/regsub/internal/submission"
)

// Profile is one authority's compiled submission profile.
type Profile struct {
	Region submission.Region
	// DTDVersion is the schema/DTD version the backbone and annex must
	// declare.
	DTDVersion string
	// AnnexRoot is the annex document's root element name.
	AnnexRoot string
	// AnnexNamespace is the annex document's root namespace.
	AnnexNamespace string
	// RequiredLeaves lists the annex sections every sequence for this
	// region must carry. An empty required section is flagged during
	// validation.
	RequiredLeaves []string
	// MaxPathLength caps the length of any relative path in the sequence.
	MaxPathLength int
	// MaxTotalSize caps the declared total size of the sequence, in bytes.
	MaxTotalSize int64
	// SeverityOverrides remaps external-validator rule severities,
	// keyed by rule identifier.
	SeverityOverrides map[string]submission.Severity
}

// Override applies the profile's severity override for a rule, if any.
func (p *Profile) Override(ruleID string, sev submission.Severity) submission.Severity {
	if o, ok := p.SeverityOverrides[ruleID]; ok {
		return o
	}
	return sev
}

// Set is the full collection of compiled profiles, keyed by region.
// Loaded once at process start and treated as immutable.
type Set map[submission.Region]*Profile

// Get returns the profile for a region.
func (s Set) Get(region submission.Region) (*Profile, error) {
	p, ok := s[region]
	if !ok {
		return nil, &CompileError{
			Field:   string(region),
			Message: "no profile compiled for region",
		}
	}
	return p, nil
}
