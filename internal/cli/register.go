package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/frontdesk/internal/record"
	"github.com/roach88/frontdesk/internal/registry"
	"github.com/roach88/frontdesk/internal/ticket"
)

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	Fields   record.Fields
	Print    bool
	NoMirror bool
}

// RegisterResult is the JSON payload of a registration.
type RegisterResult struct {
	Record record.Record `json:"record"`
	Queued bool          `json:"queued"`
	Ticket string        `json:"ticket,omitempty"`
}

func (r RegisterResult) String() string {
	return fmt.Sprintf("Registro completado. Turno: %d\nFolio: %d", r.Record.Turn, r.Record.ID)
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an arriving visitor",
		Long: `Register an arriving visitor and print the assigned turn.

All five fields are required. Leading and trailing spaces are trimmed. The
record is appended to the log before the counters are saved, and then queued
for the spreadsheet mirror. A mirror failure never undoes a registration.

Exit codes:
  0 - Registered (warnings may be printed)
  1 - Rejected (missing or invalid fields)
  2 - Command error (bad config, data directory locked or unwritable)

Examples:
  frontdesk register --first Ana --last Lopez --company ACME --provider ProveedorX --plate ABC-123
  frontdesk register --first Eva --last Ruiz --company Globex --provider ProveedorX --plate QWE-456 --print`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Fields.FirstName, "first", "", "visitor first name")
	cmd.Flags().StringVar(&opts.Fields.LastName, "last", "", "visitor last name")
	cmd.Flags().StringVar(&opts.Fields.Company, "company", "", "company the visitor represents")
	cmd.Flags().StringVar(&opts.Fields.Provider, "provider", "", "provider being visited")
	cmd.Flags().StringVar(&opts.Fields.Plate, "plate", "", "vehicle plate number")
	cmd.Flags().BoolVar(&opts.Print, "print", false, "print the ticket after registering")
	cmd.Flags().BoolVar(&opts.NoMirror, "no-mirror", false, "do not queue the record for the spreadsheet mirror")

	return cmd
}

func runRegister(opts *RegisterOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := formatter(opts.RootOptions, cmd)

	d, err := openDesk(ctx, opts.RootOptions, cmd, !opts.NoMirror)
	if err != nil {
		return err
	}
	defer closeDesk(d)

	var warnings []string
	rec, err := d.registry.Register(ctx, opts.Fields)
	switch {
	case err == nil:
	case registry.IsPartialPersistence(err):
		warnings = append(warnings, err.Error())
	default:
		return registryExitError("registration rejected", err)
	}

	result := RegisterResult{Record: rec}
	if d.dispatcher != nil {
		if err := d.dispatcher.Submit(ctx, rec); err != nil {
			warnings = append(warnings, fmt.Sprintf("record %d not queued for mirror: %v", rec.ID, err))
		} else {
			result.Queued = true
			res, err := d.dispatcher.Drain(ctx)
			switch {
			case err != nil:
				d.logger.Warn("mirror drain after register failed", "error", err)
			case res.Failed > 0:
				out.VerboseLog("Mirror unavailable, record %d stays queued", rec.ID)
			default:
				out.VerboseLog("Mirrored %d row(s) to the sheet", res.Delivered)
			}
		}
	}

	if opts.Print && opts.Format == "json" {
		result.Ticket = string(ticket.Render(rec, ticketOptions(d)))
	}
	if err := out.SuccessWithWarnings(result, warnings); err != nil {
		return err
	}
	if opts.Print && opts.Format != "json" {
		return ticket.Write(cmd.OutOrStdout(), rec, ticketOptions(d))
	}
	return nil
}

func ticketOptions(d *desk) ticket.Options {
	return ticket.Options{
		Width:    d.cfg.Ticket.Width,
		Title:    d.cfg.Ticket.Title,
		Footer:   d.cfg.Ticket.Footer,
		Location: d.registry.Location(),
	}
}
