package qc

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/avenalabs/regsub/internal/submission"
)

// Report is the structured outcome of one QC check, persisted as
// "<artifact>.qc.json" alongside the artifact.
type Report struct {
	Source   string `json:"source"`
	Artifact string `json:"artifact,omitempty"`
	// Hash is the SHA-256 of the final (normalized) artifact.
	Hash           string               `json:"hash,omitempty"`
	OutlineEntries int                  `json:"outline_entries,omitempty"`
	Findings       []submission.Finding `json:"findings,omitempty"`
}

func (r *Report) add(ruleID string, sev submission.Severity, msg, path string) {
	r.Findings = append(r.Findings, submission.Finding{
		RuleID:   ruleID,
		Severity: sev,
		Message:  msg,
		Path:     path,
	})
}

func (r *Report) errorCount() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == submission.SeverityError {
			n++
		}
	}
	return n
}

func (r *Report) warningCount() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == submission.SeverityWarning {
			n++
		}
	}
	return n
}

// Passed reports whether the document cleared the gate. Warnings do not
// block; a failed document cannot enter approved status.
func (r *Report) Passed() bool {
	return r.errorCount() == 0
}

// persist writes the report next to the given anchor file.
func (r *Report) persist(anchorPath string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("qc: marshal report: %w", err)
	}
	if err := os.WriteFile(anchorPath+".qc.json", append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("qc: persist report: %w", err)
	}
	return nil
}

// writeOutline persists the synthesized navigation aid as
// "<artifact>.outline.json".
func writeOutline(artifactPath string, entries []OutlineEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("qc: marshal outline: %w", err)
	}
	if err := os.WriteFile(artifactPath+".outline.json", append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("qc: persist outline: %w", err)
	}
	return nil
}
