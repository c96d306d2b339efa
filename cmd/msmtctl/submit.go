package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/msmtupload/internal/config"
	"github.com/JonMunkholm/msmtupload/internal/core"
)

type submitOptions struct {
	rows   []int
	dryRun bool
}

func newSubmitCmd() *cobra.Command {
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Post every row (or the selected rows) of a spreadsheet",
		Long: "Imports the file and posts one measurement document per row, in order.\n" +
			"The outcome log is printed when the run ends; the exit status is 3 when any row failed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.dryRun {
				return runDryRun(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
			}
			return runSubmit(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], opts)
		},
	}

	cmd.Flags().IntSliceVar(&opts.rows, "rows", nil, "Row indexes to post (default: all rows)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the request bodies instead of posting them")
	return cmd
}

// runDryRun prints the payload each selected row would be posted with.
func runDryRun(ctx context.Context, out io.Writer, path string, opts submitOptions) error {
	batch, _, err := importFile(ctx, path, core.Options{})
	if err != nil {
		return err
	}

	want := make(map[int]bool, len(opts.rows))
	for _, idx := range opts.rows {
		want[idx] = true
	}

	now := time.Now()
	payloads := make([]core.Payload, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		if len(want) > 0 && !want[row.Index] {
			continue
		}
		payloads = append(payloads, core.BuildPayload(row, now))
	}
	if len(payloads) == 0 {
		return withCode(exitUsage, core.ErrNoRowsSelected)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payloads)
}

func runSubmit(ctx context.Context, out, progressOut io.Writer, path string, opts submitOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return withCode(exitUsage, err)
	}
	client := remoteClient(ctx, cfg)

	svcOpts := core.Options{
		Submitter:         client,
		InterRowDelay:     cfg.Submit.InterRowDelay,
		SubmitTimeout:     cfg.Submit.Timeout,
		WithLatestReading: cfg.Remote.LookupLatest,
	}
	if cfg.Remote.LookupEnabled {
		svcOpts.Lookup = client
	}

	batch, svc, err := importFile(ctx, path, svcOpts)
	if err != nil {
		return err
	}

	id, err := svc.StartSubmission(ctx, batch.ID, opts.rows)
	if err != nil {
		return withCode(exitUsage, err)
	}

	// Ctrl-C stops after the row in flight.
	go func() {
		<-ctx.Done()
		_ = svc.CancelSubmission(id)
	}()

	progress, err := svc.SubscribeProgress(id)
	if err != nil {
		return err
	}
	for p := range progress {
		if p.TotalRows > 0 {
			fmt.Fprintf(progressOut, "\r%d/%d rows (%d%%)", p.DoneRows, p.TotalRows, p.Percent())
		}
	}
	fmt.Fprintln(progressOut)

	res, err := svc.SubmissionResult(context.WithoutCancel(ctx), id)
	if err != nil {
		return err
	}

	printLog(out, svc.Logs(false))
	fmt.Fprintf(out, "\n%d attempted, %d succeeded, %d failed, %d skipped in %s\n",
		res.Attempted, res.Succeeded, res.Failed, res.Skipped, res.Duration.Round(time.Millisecond))

	if res.Cancelled {
		return withCode(exitFailure, context.Canceled)
	}
	if res.Failed > 0 {
		return withCode(exitRowsFailed, fmt.Errorf("%d rows failed", res.Failed))
	}
	return nil
}

func printLog(out io.Writer, entries []core.LogEntry) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EQUIPMENT\tVALUE\tSTATE\tMESSAGE")
	for _, e := range entries {
		value := ""
		if e.Value != nil {
			value = fmt.Sprint(e.Value)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Equipment, value, e.State, e.ErrorText)
	}
	tw.Flush()
}
