package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avenalabs/regsub/internal/submission"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <sequence-id>",
		Short: "Run the validation pipeline on an assembled sequence",
		Long: `Run regional pre-checks, the structural backbone/annex check, and the
external authority validator (when configured) against an assembled
sequence. The sequence moves to validated_pass or validated_fail.

Exit code 1 means the sequence failed validation; the findings are the
result, not a crash. An unreachable external validator exits 2 and
leaves the sequence assembling so validation can be retried.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			seqID, err := parseSequenceID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}

			result, err := a.manager.Validate(cmd.Context(), seqID)
			if err != nil {
				_ = out.Failure(err)
				return WrapExitError(ExitCommandError, "validate sequence", err)
			}

			seq, err := a.manager.Get(cmd.Context(), seqID)
			if err != nil {
				return WrapExitError(ExitCommandError, "load sequence", err)
			}
			if err := out.Success(newValidateView(seq, result)); err != nil {
				return err
			}
			if !result.Passed() {
				return WrapExitError(ExitFailure,
					fmt.Sprintf("sequence %d failed validation with %d error(s)", seqID, result.ErrorCount()), nil)
			}
			return nil
		},
	}
}

type validateView struct {
	ID       int64         `json:"id"`
	Status   string        `json:"status"`
	Passed   bool          `json:"passed"`
	Errors   int           `json:"errors"`
	Findings []findingView `json:"findings,omitempty"`
}

func newValidateView(seq *submission.Sequence, result *submission.ValidationResult) validateView {
	v := validateView{
		ID:     seq.ID,
		Status: string(seq.Status),
		Passed: result.Passed(),
		Errors: result.ErrorCount(),
	}
	for _, f := range result.Findings {
		v.Findings = append(v.Findings, findingView{
			Rule:     f.RuleID,
			Severity: string(f.Severity),
			Message:  f.Message,
			Path:     f.Path,
		})
	}
	return v
}

func (v validateView) String() string {
	verdict := "PASS"
	if !v.Passed {
		verdict = "FAIL"
	}
	s := fmt.Sprintf("sequence %d: %s (%d finding(s), %d error(s))", v.ID, verdict, len(v.Findings), v.Errors)
	for _, f := range v.Findings {
		s += fmt.Sprintf("\n  [%s] %s: %s", f.Severity, f.Rule, f.Message)
		if f.Path != "" {
			s += " (" + f.Path + ")"
		}
	}
	return s
}
