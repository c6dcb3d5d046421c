package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/frontdesk/internal/mirror"
	"github.com/roach88/frontdesk/internal/outbox"
)

// NewMirrorCommand creates the mirror command group.
func NewMirrorCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Inspect and flush the spreadsheet mirror outbox",
		Long: `Inspect and flush the spreadsheet mirror outbox.

Every registration is queued in a local outbox and sent to the configured
webhook in record order. Rows that could not be sent stay queued.`,
	}

	cmd.AddCommand(newMirrorDrainCommand(rootOpts))
	cmd.AddCommand(newMirrorStatusCommand(rootOpts))
	cmd.AddCommand(newMirrorWatchCommand(rootOpts))

	return cmd
}

func newMirrorDrainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Send every queued row now",
		Long: `Send every queued row now, oldest first.

Sending stops at the first failure so rows are never appended out of order.

Exit codes:
  0 - Queue empty
  1 - A row could not be sent (it stays queued)
  2 - Command error (mirror disabled, outbox unreadable, etc.)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirrorDrain(rootOpts, cmd)
		},
	}
}

func runMirrorDrain(opts *RootOptions, cmd *cobra.Command) error {
	d, err := openMirrorDesk(opts, cmd)
	if err != nil {
		return err
	}
	defer closeDesk(d)

	var total mirror.DrainResult
	for {
		res, err := d.dispatcher.Drain(cmd.Context())
		total.Delivered += res.Delivered
		total.Failed += res.Failed
		if err != nil {
			return WrapExitError(ExitCommandError, "mirror drain failed", err)
		}
		if res.Failed > 0 || res.Delivered == 0 {
			break
		}
	}

	if opts.Format == "json" {
		if err := formatter(opts, cmd).Success(total); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Delivered: %d\n", total.Delivered)
	}

	if total.Failed > 0 {
		return NewExitError(ExitFailure, "mirror delivery failed; remaining rows stay queued")
	}
	return nil
}

// MirrorStatusOptions holds flags for the mirror status command.
type MirrorStatusOptions struct {
	*RootOptions
	RecordID int64
}

// MirrorRecordStatus is the mirror state of one record.
type MirrorRecordStatus struct {
	RecordID    int64      `json:"record_id"`
	MessageID   string     `json:"message_id"`
	QueuedAt    time.Time  `json:"queued_at"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

func newMirrorStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MirrorStatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show outbox counts",
		Long: `Show outbox counts, or with --record the mirror state of one record.

Exit codes:
  0 - Status shown
  1 - The record was never queued
  2 - Command error (mirror disabled, outbox unreadable, etc.)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirrorStatus(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.RecordID, "record", 0, "show the mirror state of this record id")

	return cmd
}

func runMirrorStatus(opts *MirrorStatusOptions, cmd *cobra.Command) error {
	d, err := openMirrorDesk(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer closeDesk(d)

	if opts.RecordID != 0 {
		return showRecordStatus(opts.RootOptions, cmd, d, opts.RecordID)
	}

	stats, err := d.outbox.Stats(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read outbox", err)
	}

	if opts.Format == "json" {
		return formatter(opts.RootOptions, cmd).Success(stats)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Pending:   %d (%d failing)\n", stats.Pending, stats.Failing)
	fmt.Fprintf(w, "Delivered: %d\n", stats.Delivered)
	if stats.OldestPending != nil {
		fmt.Fprintf(w, "Oldest pending queued %s\n", humanize.Time(*stats.OldestPending))
	}
	return nil
}

func showRecordStatus(opts *RootOptions, cmd *cobra.Command, d *desk, id int64) error {
	msg, err := d.outbox.ByRecord(cmd.Context(), id)
	if errors.Is(err, outbox.ErrNotFound) {
		return NewExitError(ExitFailure, fmt.Sprintf("record %d was never queued for the mirror", id))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read outbox", err)
	}

	status := MirrorRecordStatus{
		RecordID:    msg.Record.ID,
		MessageID:   msg.ID,
		QueuedAt:    msg.CreatedAt,
		Attempts:    msg.Attempts,
		LastError:   msg.LastError,
		DeliveredAt: msg.DeliveredAt,
	}
	if opts.Format == "json" {
		return formatter(opts, cmd).Success(status)
	}

	w := cmd.OutOrStdout()
	if status.DeliveredAt != nil {
		fmt.Fprintf(w, "Record %d: delivered %s (%d attempt(s))\n", id, humanize.Time(*status.DeliveredAt), status.Attempts)
		return nil
	}
	fmt.Fprintf(w, "Record %d: pending, queued %s, %d failed attempt(s)\n", id, humanize.Time(status.QueuedAt), status.Attempts)
	if status.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", status.LastError)
	}
	return nil
}

func newMirrorWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep sending queued rows until interrupted",
		Long: `Keep sending queued rows until interrupted.

Drains the outbox every mirror.interval. While the sheet keeps failing the
wait doubles up to mirror.max_backoff. It does not lock the data directory,
so registrations can run at the same time.

Exit codes:
  0 - Stopped by a signal
  2 - Command error (mirror disabled, outbox unreadable, etc.)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirrorWatch(rootOpts, cmd)
		},
	}
}

func runMirrorWatch(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	d, err := openMirrorDesk(opts, cmd)
	if err != nil {
		return err
	}
	defer closeDesk(d)

	formatter(opts, cmd).VerboseLog("Watching %s every %s (backoff up to %s)",
		d.cfg.OutboxPath(), d.cfg.Mirror.Interval, d.cfg.Mirror.MaxBackoff)

	d.dispatcher.Start(ctx)
	<-ctx.Done()
	d.dispatcher.Stop()

	stats, err := d.outbox.Stats(context.WithoutCancel(ctx))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read outbox", err)
	}
	if opts.Format == "json" {
		return formatter(opts, cmd).Success(stats)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Mirror stopped. Pending: %d\n", stats.Pending)
	return nil
}
