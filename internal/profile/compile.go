package profile

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/avenalabs/regsub/internal/submission"
)

// CompileError reports a problem compiling a profile from CUE.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: profile field %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("profile field %s: %s", e.Field, e.Message)
}

// Compile parses a CUE value into a Profile.
//
// The CUE value should be one profile struct, e.g. the value at
// profile.us in:
//
//	profile: us: {
//		region:      "us"
//		dtd_version: "3.3"
//		...
//	}
func Compile(v cue.Value) (*Profile, error) {
	if err := v.Err(); err != nil {
		return nil, &CompileError{Field: "profile", Message: err.Error(), Pos: v.Pos()}
	}

	p := &Profile{SeverityOverrides: map[string]submission.Severity{}}

	region, err := requiredString(v, "region")
	if err != nil {
		return nil, err
	}
	p.Region = submission.Region(region)
	if !submission.ValidRegions[p.Region] {
		return nil, &CompileError{
			Field:   "region",
			Message: fmt.Sprintf("unsupported region %q", region),
			Pos:     v.Pos(),
		}
	}

	if p.DTDVersion, err = requiredString(v, "dtd_version"); err != nil {
		return nil, err
	}
	if p.AnnexRoot, err = requiredString(v, "annex_root"); err != nil {
		return nil, err
	}
	if p.AnnexNamespace, err = requiredString(v, "annex_namespace"); err != nil {
		return nil, err
	}

	leavesVal := v.LookupPath(cue.ParsePath("required_leaves"))
	if leavesVal.Exists() {
		iter, iterErr := leavesVal.List()
		if iterErr != nil {
			return nil, &CompileError{Field: "required_leaves", Message: iterErr.Error(), Pos: leavesVal.Pos()}
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, &CompileError{Field: "required_leaves", Message: err.Error(), Pos: iter.Value().Pos()}
			}
			p.RequiredLeaves = append(p.RequiredLeaves, submission.CanonicalPath(s))
		}
	}

	if p.MaxPathLength, err = requiredInt(v, "max_path_length"); err != nil {
		return nil, err
	}
	maxSizeMB, err := requiredInt(v, "max_total_size_mb")
	if err != nil {
		return nil, err
	}
	p.MaxTotalSize = int64(maxSizeMB) << 20

	overridesVal := v.LookupPath(cue.ParsePath("severity_overrides"))
	if overridesVal.Exists() {
		iter, iterErr := overridesVal.Fields()
		if iterErr != nil {
			return nil, &CompileError{Field: "severity_overrides", Message: iterErr.Error(), Pos: overridesVal.Pos()}
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, &CompileError{Field: "severity_overrides", Message: err.Error(), Pos: iter.Value().Pos()}
			}
			sev := submission.Severity(s)
			switch sev {
			case submission.SeverityError, submission.SeverityWarning, submission.SeverityInfo:
			default:
				return nil, &CompileError{
					Field:   "severity_overrides",
					Message: fmt.Sprintf("invalid severity %q for rule %s", s, iter.Label()),
					Pos:     iter.Value().Pos(),
				}
			}
			p.SeverityOverrides[iter.Label()] = sev
		}
	}

	return p, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: "required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: err.Error(), Pos: fv.Pos()}
	}
	return s, nil
}

func requiredInt(v cue.Value, field string) (int, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, &CompileError{Field: field, Message: "required", Pos: v.Pos()}
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, &CompileError{Field: field, Message: err.Error(), Pos: fv.Pos()}
	}
	return int(n), nil
}
