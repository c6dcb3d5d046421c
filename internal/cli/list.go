package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/frontdesk/internal/record"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Limit int
}

// ListResult is the JSON payload of the list command.
type ListResult struct {
	Records []record.Record `json:"records"`
	Total   int             `json:"total"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registrations, newest first",
		Long: `List registrations, newest first.

Examples:
  frontdesk list
  frontdesk list --limit 20 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "show at most n records (0 = all)")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --limit %d: must be >= 0", opts.Limit))
	}

	d, err := openDesk(cmd.Context(), opts.RootOptions, cmd, false)
	if err != nil {
		return err
	}
	defer closeDesk(d)

	view := d.registry.OrderedView()
	result := ListResult{Records: view, Total: len(view)}
	if opts.Limit > 0 && len(view) > opts.Limit {
		result.Records = view[:opts.Limit]
	}

	if opts.Format == "json" {
		return formatter(opts.RootOptions, cmd).Success(result)
	}

	w := cmd.OutOrStdout()
	if result.Total == 0 {
		fmt.Fprintln(w, "No registrations yet.")
		return nil
	}

	loc := d.registry.Location()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTURNO\tFECHA\tNOMBRE\tSOCIEDAD\tPROVEEDOR\tPLACAS")
	for _, r := range result.Records {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s %s\t%s\t%s\t%s\n",
			r.ID, r.Turn, r.Timestamp.In(loc).Format("2006-01-02 15:04:05"),
			r.FirstName, r.LastName, r.Company, r.Provider, r.Plate)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(result.Records) < result.Total {
		fmt.Fprintf(w, "(%d of %d shown)\n", len(result.Records), result.Total)
	}
	return nil
}
