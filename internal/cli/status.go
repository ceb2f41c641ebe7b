package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/avenalabs/regsub/internal/submission"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status <sequence-id>",
		Short:         "Show a sequence's state, validation result, and acknowledgments",
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

			seq, err := a.manager.Get(cmd.Context(), seqID)
			if err != nil {
				return WrapExitError(ExitCommandError, "load sequence", err)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			return out.Success(newStatusView(seq))
		},
	}
}

func parseSequenceID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid sequence id %q", arg), err)
	}
	return id, nil
}

type statusView struct {
	sequenceView
	Terminal bool          `json:"terminal"`
	Findings []findingView `json:"findings,omitempty"`
	Acks     []ackView     `json:"acks,omitempty"`
}

type findingView struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
}

type ackView struct {
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	Anomalous bool   `json:"anomalous,omitempty"`
}

func newStatusView(seq *submission.Sequence) statusView {
	v := statusView{
		sequenceView: newSequenceView(seq),
		Terminal:     seq.Status.Terminal(),
	}
	if seq.Validation != nil {
		for _, f := range seq.Validation.Findings {
			v.Findings = append(v.Findings, findingView{
				Rule:     f.RuleID,
				Severity: string(f.Severity),
				Message:  f.Message,
				Path:     f.Path,
			})
		}
	}
	for _, rec := range []*submission.AckRecord{seq.Ack1, seq.Ack2, seq.Ack3} {
		if rec == nil {
			continue
		}
		v.Acks = append(v.Acks, ackView{
			Stage:     string(rec.Stage),
			Status:    rec.Status,
			Anomalous: rec.Anomalous,
		})
	}
	return v
}

func (v statusView) String() string {
	s := v.sequenceView.String()
	for _, f := range v.Findings {
		s += fmt.Sprintf("\n  [%s] %s: %s", f.Severity, f.Rule, f.Message)
		if f.Path != "" {
			s += " (" + f.Path + ")"
		}
	}
	for _, a := range v.Acks {
		s += fmt.Sprintf("\n  ack %s: %s", a.Stage, a.Status)
		if a.Anomalous {
			s += " (out of order)"
		}
	}
	return s
}
