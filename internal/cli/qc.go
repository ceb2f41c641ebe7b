package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/avenalabs/regsub/internal/qc"
	"github.com/avenalabs/regsub/internal/store"
	"github.com/avenalabs/regsub/internal/submission"
)

// QCOptions holds flags for the qc command.
type QCOptions struct {
	*RootOptions
	Workers int
}

// NewQCCommand creates the qc command.
func NewQCCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QCOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "qc <files...>",
		Short: "Run the document quality gate on source files",
		Long: `Run quality control on one or more source files: normalize, check
searchability and size, synthesize a navigation outline, and scan
embedded links. Reports are written next to each artifact.

When a checked file is the source of a registered document, the
document's QC status and content hash are updated; a QC failure also
knocks an approved document back to review.

Exit code 1 means at least one file failed the gate.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQC(opts, cmd, args)
		},
	}

	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent checks (defaults to configuration)")

	return cmd
}

func runQC(opts *QCOptions, cmd *cobra.Command, sources []string) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	gate := a.gate
	if opts.Workers > 0 {
		gate = qc.NewGate(qc.Config{
			MaxSize: a.cfg.QC.MaxSizeBytes,
			Workers: opts.Workers,
		}, qc.PassthroughNormalizer{})
	}

	ctx := cmd.Context()
	outcomes := qc.NewPool(gate).CheckAll(ctx, sources)

	failed := 0
	views := make([]qcView, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("check %s", o.Source), o.Err)
		}
		if !o.Report.Passed() {
			failed++
		}
		views = append(views, newQCView(o))
		recordQCResult(cmd, a.store, o)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if err := out.Success(qcSummary{Checked: len(views), Failed: failed, Reports: views}); err != nil {
		return err
	}
	if failed > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d file(s) failed quality control", failed), nil)
	}
	return nil
}

// recordQCResult attaches the check outcome to the registered document
// whose source path matches, when there is one.
func recordQCResult(cmd *cobra.Command, st *store.Store, o qc.Outcome) {
	doc, err := st.FindDocumentBySource(cmd.Context(), o.Source)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		slog.Warn("document lookup failed", "source", o.Source, "error", err)
		return
	}

	status := submission.QCPassed
	if !o.Report.Passed() {
		status = submission.QCFailed
	}
	if err := st.SetDocumentQC(cmd.Context(), doc.ID, status, o.Report.Hash, o.Report.Artifact); err != nil {
		slog.Warn("recording qc result failed", "document", doc.ID, "error", err)
	}
}

type qcSummary struct {
	Checked int      `json:"checked"`
	Failed  int      `json:"failed"`
	Reports []qcView `json:"reports"`
}

type qcView struct {
	Source   string        `json:"source"`
	Passed   bool          `json:"passed"`
	Hash     string        `json:"hash,omitempty"`
	Findings []findingView `json:"findings,omitempty"`
}

func newQCView(o qc.Outcome) qcView {
	v := qcView{
		Source: o.Source,
		Passed: o.Report.Passed(),
		Hash:   o.Report.Hash,
	}
	for _, f := range o.Report.Findings {
		v.Findings = append(v.Findings, findingView{
			Rule:     f.RuleID,
			Severity: string(f.Severity),
			Message:  f.Message,
			Path:     f.Path,
		})
	}
	return v
}

func (s qcSummary) String() string {
	out := fmt.Sprintf("%d file(s) checked, %d failed", s.Checked, s.Failed)
	for _, v := range s.Reports {
		verdict := "pass"
		if !v.Passed {
			verdict = "FAIL"
		}
		out += fmt.Sprintf("\n  %s: %s", v.Source, verdict)
		for _, f := range v.Findings {
			out += fmt.Sprintf("\n    [%s] %s: %s", f.Severity, f.Rule, f.Message)
		}
	}
	return out
}
