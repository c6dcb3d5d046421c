package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/frontdesk/internal/sequence"
)

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Raise the counters to match the record log",
		Long: `Raise the counters to match the record log.

Opening the desk already reconciles; this command reports what was found.
Counters only move forward: an id or turn that was ever issued is never
issued again.

Example:
  frontdesk reconcile --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(rootOpts, cmd)
		},
	}
	return cmd
}

func runReconcile(opts *RootOptions, cmd *cobra.Command) error {
	d, err := openDesk(cmd.Context(), opts, cmd, false)
	if err != nil {
		return err
	}
	defer closeDesk(d)

	// Open has already raised the counters; its result is the interesting one.
	res := d.registry.Startup().Reconcile
	again, err := d.registry.Reconcile()
	if err != nil {
		return registryExitError("reconcile failed", err)
	}
	res.Changed = res.Changed || again.Changed
	res.After = again.After

	if opts.Format == "json" {
		return formatter(opts, cmd).Success(res)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Log:    %s\n", describeCounters(res.Log))
	fmt.Fprintf(w, "Before: %s\n", describeCounters(res.Before))
	fmt.Fprintf(w, "After:  %s\n", describeCounters(res.After))
	if res.Changed {
		fmt.Fprintln(w, "Counters raised to match the log.")
	} else {
		fmt.Fprintln(w, "Counters already consistent.")
	}
	return nil
}

func describeCounters(c sequence.Counters) string {
	date := c.LastTurnDate
	if date == "" {
		date = "-"
	}
	return fmt.Sprintf("last_id=%d last_turn=%d date=%s", c.LastID, c.LastTurn, date)
}

