package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"shopfloor/internal/board"
	"shopfloor/internal/client"
	"shopfloor/internal/jobs"
	"shopfloor/internal/model"
)

func watchCmd(opts *rootOptions) *cobra.Command {
	var (
		filter  client.ListFilter
		refresh time.Duration
		redraw  time.Duration
		count   int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show a live board of transactions until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			b := board.New(c, board.Options{Location: c.Location()})
			defer b.Close()
			return runWatch(cmd.Context(), cmd.OutOrStdout(), c, b, filter, refresh, redraw, count)
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter.Employee, "for", "", "only rows of this employee (and unassigned rows)")
	f.StringVar(&filter.Machine, "machine", "", "only rows on this machine")
	f.StringVar(&filter.Pool, "pool", "", "only members of this pool")
	f.DurationVar(&refresh, "refresh", 5*time.Second, "interval between server refreshes")
	f.DurationVar(&redraw, "redraw", time.Second, "interval between redraws")
	f.IntVar(&count, "count", 0, "stop after this many redraws (0: until interrupted)")
	return cmd
}

type lister interface {
	ListTransactions(ctx context.Context, f client.ListFilter) ([]model.Transaction, int64, error)
}

func runWatch(ctx context.Context, out io.Writer, c lister, b *board.Board, filter client.ListFilter, refresh, redraw time.Duration, count int) error {
	load := func() error {
		txs, _, err := c.ListTransactions(ctx, filter)
		if err != nil {
			return errors.Wrap(err, "refresh board")
		}
		return b.Load(txs)
	}
	if err := load(); err != nil {
		return err
	}

	refreshT := time.NewTicker(refresh)
	defer refreshT.Stop()
	redrawT := time.NewTicker(redraw)
	defer redrawT.Stop()

	drawn := 0
	for {
		drawBoard(out, b)
		drawn++
		if count > 0 && drawn >= count {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-refreshT.C:
			if err := load(); err != nil {
				fmt.Fprintln(out, pausedColor.Sprint(err.Error()))
			}
		case <-redrawT.C:
		}
	}
}

func drawBoard(out io.Writer, b *board.Board) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRANS\tJOB\tOPER\tMACHINE\tEMPLOYEE\tSTATUS\tELAPSED")
	for _, r := range b.Rows() {
		t := r.Transaction()
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			t.TransNum, t.Key.Job, t.Key.Operation, dash(t.Machine), dash(t.Employee),
			statusLabel(t.Status), r.Elapsed())
	}
	_ = w.Flush()
	fmt.Fprintln(out)
}

// elapsedCmd reconciles a status log offline. The input is either a JSON
// array of log entries or a log response object.
func elapsedCmd(opts *rootOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "elapsed [file]",
		Short: "Reconcile a JSON status log offline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := opts.loc()
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.Wrap(err, "open status log")
				}
				defer f.Close()
				r = f
			}
			entries, err := decodeLog(r, loc)
			if err != nil {
				return err
			}

			now := time.Now().In(loc)
			if at != "" {
				if now, err = model.ParseLocal(at, loc); err != nil {
					return err
				}
			}
			el := jobs.Reconcile(entries, now)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", jobs.FormatHMS(el.Seconds(now)), statusLabel(el.State))
			if el.Live {
				fmt.Fprintf(out, "running since %s\n", model.FormatLocal(el.RunningSince, loc))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "now", "", "local time to reconcile at (default: now)")
	return cmd
}

func decodeLog(r io.Reader, loc *time.Location) ([]jobs.LogEntry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read status log")
	}
	var rows []model.LogEntryRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		var resp model.LogResponse
		if err2 := json.Unmarshal(raw, &resp); err2 != nil {
			return nil, errors.Wrap(err, "decode status log")
		}
		rows = resp.Entries
	}
	entries := make([]jobs.LogEntry, 0, len(rows))
	for i, row := range rows {
		if row.Stage == "" {
			row.Stage = string(jobs.StageProduction)
		}
		e, err := row.Normalize(loc)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d", i)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
