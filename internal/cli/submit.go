package cli

import (
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/avenalabs/regsub/internal/submission"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Retries uint
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <sequence-id>",
		Short: "Upload a validated sequence to the gateway",
		Long: `Upload a validated sequence's archive and manifest to the authority
gateway. Network failures are retried with exponential backoff up to
--retry times; authentication failures are not retried. A failed
submission leaves the sequence in validated_pass for a later attempt.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, cmd, args[0])
		},
	}

	cmd.Flags().UintVar(&opts.Retries, "retry", 3, "retry attempts for transient transport failures")

	return cmd
}

func runSubmit(opts *SubmitOptions, cmd *cobra.Command, arg string) error {
	seqID, err := parseSequenceID(arg)
	if err != nil {
		return err
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	ctx := cmd.Context()

	var remote string
	operation := func() error {
		r, err := a.manager.Submit(ctx, seqID)
		if err != nil {
			// Only transient transport problems are worth another attempt.
			// Bad credentials, state errors, and plan problems will not
			// fix themselves.
			if submission.CodeOf(err) != submission.ErrCodeTransportNetwork {
				return backoff.Permanent(err)
			}
			slog.Warn("transient transport failure, will retry",
				"sequence", seqID, "error", err)
			return err
		}
		remote = r
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(opts.Retries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		_ = out.Failure(err)
		return WrapExitError(ExitFailure, "submit sequence", err)
	}

	return out.Success(fmt.Sprintf("sequence %d submitted to %s", seqID, remote))
}
