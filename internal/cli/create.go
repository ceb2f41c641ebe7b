package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avenalabs/regsub/internal/config"
	"github.com/avenalabs/regsub/internal/submission"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Region string
	Plan   string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and assemble a new submission sequence",
		Long: `Create a new sequence for a region and assemble it from a plan file.

The plan lists the documents the sequence carries, their destination
module paths, and their lifecycle operations. Every document must be
approved and QC-passed; a rejected plan reports all offenders and
leaves nothing behind.

Example:
  regsub create --plan plan.yaml
  regsub create --region eu --plan plan.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Region, "region", "", "target region (defaults to the plan's region)")
	cmd.Flags().StringVar(&opts.Plan, "plan", "", "path to the assembly plan file (required)")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

func runCreate(opts *CreateOptions, cmd *cobra.Command) error {
	region, items, err := config.LoadPlan(opts.Plan)
	if err != nil {
		return WrapExitError(ExitCommandError, "load plan", err)
	}
	if opts.Region != "" {
		region = submission.Region(opts.Region)
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	seq, err := a.manager.Create(ctx, region)
	if err != nil {
		return WrapExitError(ExitCommandError, "create sequence", err)
	}
	seq, err = a.manager.Assemble(ctx, seq.ID, items)
	if err != nil {
		out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
		_ = out.Failure(err)
		return WrapExitError(ExitFailure, "assemble sequence", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Success(newSequenceView(seq))
}

// sequenceView is the display shape shared by create and status.
type sequenceView struct {
	ID     int64  `json:"id"`
	Region string `json:"region"`
	Number string `json:"number"`
	Status string `json:"status"`
	Dir    string `json:"dir,omitempty"`
	Remote string `json:"remote,omitempty"`
}

func newSequenceView(seq *submission.Sequence) sequenceView {
	return sequenceView{
		ID:     seq.ID,
		Region: string(seq.Region),
		Number: submission.FormatNumber(seq.Number),
		Status: string(seq.Status),
		Dir:    seq.BaseDir,
		Remote: seq.RemoteDir,
	}
}

func (v sequenceView) String() string {
	s := fmt.Sprintf("sequence %d: %s/%s status=%s", v.ID, v.Region, v.Number, v.Status)
	if v.Remote != "" {
		s += " remote=" + v.Remote
	}
	return s
}
