package validation

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/avenalabs/regsub/internal/profile"
	"github.com/avenalabs/regsub/internal/submission"
)

// ExternalValidator is the authority-specific rule-profile validator.
// The concrete implementation may shell out to a local binary or call a
// remote service; the orchestrator never assumes which.
//
// A returned error means the validator itself was unreachable, which the
// orchestrator reports as EXTERNAL_VALIDATOR_UNREACHABLE - distinct from
// the validator running successfully and reporting findings.
type ExternalValidator interface {
	Validate(ctx context.Context, seqDir string, p *profile.Profile) ([]submission.Finding, error)
}

// CommandValidator runs a local validator binary. The binary receives the
// sequence directory and region code as arguments and reports findings on
// stdout, one per line:
//
//	RULE-ID|severity|relative/path|message
//
// Exit status 0 with findings is a successful run (the findings are real);
// a non-zero exit or spawn failure is unreachability.
type CommandValidator struct {
	Path string
	Args []string
}

// Validate implements ExternalValidator.
func (v CommandValidator) Validate(ctx context.Context, seqDir string, p *profile.Profile) ([]submission.Finding, error) {
	args := append(append([]string{}, v.Args...), seqDir, string(p.Region))
	cmd := exec.CommandContext(ctx, v.Path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("validator %s: %w (stderr: %s)",
			v.Path, err, strings.TrimSpace(stderr.String()))
	}
	return ParseFindings(stdout.Bytes())
}

// ParseFindings decodes the line-oriented finding format produced by
// external validator binaries.
func ParseFindings(output []byte) ([]submission.Finding, error) {
	var findings []submission.Finding
	sc := bufio.NewScanner(bytes.NewReader(output))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		parts := strings.SplitN(text, "|", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("validator output line %d: malformed finding %q", line, text)
		}
		sev := submission.Severity(parts[1])
		switch sev {
		case submission.SeverityError, submission.SeverityWarning, submission.SeverityInfo:
		default:
			return nil, fmt.Errorf("validator output line %d: unknown severity %q", line, parts[1])
		}
		findings = append(findings, submission.Finding{
			RuleID:   parts[0],
			Severity: sev,
			Path:     parts[2],
			Message:  parts[3],
		})
	}
	return findings, sc.Err()
}

// StaticValidator returns fixed findings, or fails as unreachable.
// Test double.
type StaticValidator struct {
	Findings    []submission.Finding
	Unreachable bool
}

func (v StaticValidator) Validate(ctx context.Context, seqDir string, p *profile.Profile) ([]submission.Finding, error) {
	if v.Unreachable {
		return nil, fmt.Errorf("validator endpoint unavailable")
	}
	return v.Findings, nil
}
