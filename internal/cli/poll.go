package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avenalabs/regsub/internal/ack"
	"github.com/avenalabs/regsub/internal/submission"
)

// PollOptions holds flags for the poll command.
type PollOptions struct {
	*RootOptions
	Once     bool
	Interval time.Duration
}

// NewPollCommand creates the poll command.
func NewPollCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PollOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll the gateway for acknowledgment files",
		Long: `Check the remote acks/ folder of every submitted sequence, download
new acknowledgment files, and advance sequence states. With --once a
single pass runs and the updates are printed; otherwise the poller
keeps running on a ticker until interrupted.

Example:
  regsub poll --once
  regsub poll --interval 10m`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single poll pass and exit")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "poll cadence (overrides configuration)")

	return cmd
}

func runPoll(opts *PollOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.poller == nil {
		return WrapExitError(ExitCommandError, "no gateway configured", nil)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	if opts.Once {
		updates, err := a.poller.Poll(cmd.Context())
		if err != nil {
			_ = out.Failure(err)
			return WrapExitError(ExitFailure, "poll pass", err)
		}
		return out.Success(newPollView(updates))
	}

	interval := opts.Interval
	if interval == 0 {
		if interval, err = a.cfg.PollInterval(); err != nil {
			return WrapExitError(ExitCommandError, "poll interval", err)
		}
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping poller", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("acknowledgment poller started", "interval", interval)
	if err := ack.NewRunner(a.poller, interval).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "poller stopped", err)
	}
	return nil
}

type pollView struct {
	Updates []pollUpdateView `json:"updates"`
}

type pollUpdateView struct {
	Sequence  int64  `json:"sequence"`
	Stage     string `json:"stage"`
	From      string `json:"from"`
	To        string `json:"to"`
	Anomalous bool   `json:"anomalous,omitempty"`
}

func newPollView(updates []submission.SequenceUpdate) pollView {
	v := pollView{Updates: []pollUpdateView{}}
	for _, u := range updates {
		v.Updates = append(v.Updates, pollUpdateView{
			Sequence:  u.SequenceID,
			Stage:     string(u.Stage),
			From:      string(u.From),
			To:        string(u.To),
			Anomalous: u.Anomalous,
		})
	}
	return v
}

func (v pollView) String() string {
	if len(v.Updates) == 0 {
		return "no new acknowledgments"
	}
	s := fmt.Sprintf("%d update(s)", len(v.Updates))
	for _, u := range v.Updates {
		s += fmt.Sprintf("\n  sequence %d: %s -> %s (stage %s)", u.Sequence, u.From, u.To, u.Stage)
		if u.Anomalous {
			s += " [out of order]"
		}
	}
	return s
}
