package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/frontdesk/internal/ticket"
)

// NewTicketCommand creates the ticket command.
func NewTicketCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ticket <record-id>",
		Short: "Print the ticket of an existing registration",
		Long: `Print the ticket of an existing registration again.

Example:
  frontdesk ticket 42`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTicket(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runTicket(opts *RootOptions, arg string, cmd *cobra.Command) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid record id %q", arg))
	}

	d, err := openDesk(cmd.Context(), opts, cmd, false)
	if err != nil {
		return err
	}
	defer closeDesk(d)

	rec, ok := d.registry.Find(id)
	if !ok {
		return NewExitError(ExitFailure, fmt.Sprintf("record %d not found", id))
	}

	if opts.Format == "json" {
		return formatter(opts, cmd).Success(RegisterResult{
			Record: rec,
			Ticket: string(ticket.Render(rec, ticketOptions(d))),
		})
	}
	return ticket.Write(cmd.OutOrStdout(), rec, ticketOptions(d))
}
