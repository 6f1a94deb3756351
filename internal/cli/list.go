package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"shopfloor/internal/client"
	"shopfloor/internal/jobs"
	"shopfloor/internal/model"
)

func listCmd(opts *rootOptions) *cobra.Command {
	var (
		filter client.ListFilter
		status string
		stage  string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if status != "" {
				s, err := jobs.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = &s
			}
			if stage != "" {
				s, err := jobs.ParseStage(stage)
				if err != nil {
					return err
				}
				filter.Stage = s
			}

			txs, total, err := c.ListTransactions(cmd.Context(), filter)
			if err != nil {
				return errors.Wrap(err, "list transactions")
			}
			if len(txs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No transactions found")
				return nil
			}
			writeTransactions(cmd, txs, time.Now())
			if int64(len(txs)) < total {
				fmt.Fprintf(cmd.OutOrStdout(), "showing %d of %d\n", len(txs), total)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter.Employee, "for", "", "only rows of this employee (and unassigned rows)")
	f.StringVar(&filter.Machine, "machine", "", "only rows on this machine")
	f.StringVar(&filter.Pool, "pool", "", "only members of this pool")
	f.StringVar(&status, "status", "", "status code: 0 (idle), 1 (started), 2 (paused), 3 (completed)")
	f.StringVar(&stage, "stage", "", "production, qc, verify or closed")
	f.IntVar(&filter.Limit, "limit", 0, "page size")
	f.IntVar(&filter.Offset, "offset", 0, "page offset")
	return cmd
}

func writeTransactions(cmd *cobra.Command, txs []model.Transaction, now time.Time) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRANS\tJOB\tSERIAL\tOPER\tMACHINE\tEMPLOYEE\tSTAGE\tSTATUS\tELAPSED")
	for _, t := range txs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			t.TransNum, t.Key.Job, t.Key.SerialNo, t.Key.Operation,
			dash(t.Machine), dash(t.Employee), t.Stage, statusLabel(t.Status),
			jobs.FormatHMS(t.Elapsed().Seconds(now)))
	}
	_ = w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func parseTransNum(arg string) (int64, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.Newf("invalid transaction number %q", arg)
	}
	return n, nil
}

func logCmd(opts *rootOptions) *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "log <transNum>",
		Short: "Show the status log of a transaction stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transNum, err := parseTransNum(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			st := jobs.Stage("")
			if stage != "" {
				if st, err = jobs.ParseStage(stage); err != nil {
					return err
				}
			}
			log, err := c.GetLog(cmd.Context(), transNum, st)
			if err != nil {
				return errors.Wrap(err, "load status log")
			}
			writeLog(cmd, log.Stage, log.Entries, c.Location(), time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage to show (default: current stage)")
	return cmd
}

func writeLog(cmd *cobra.Command, stage jobs.Stage, entries []jobs.LogEntry, loc *time.Location, now time.Time) {
	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTATUS\tACTOR\tMACHINE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", model.FormatLocal(e.StatusTime, loc), statusLabel(e.StatusID), e.Actor, dash(e.Machine))
	}
	_ = w.Flush()

	el := jobs.Reconcile(entries, now)
	fmt.Fprintf(out, "stage %s: %s, elapsed %s", dash(string(stage)), statusLabel(el.State), jobs.FormatHMS(el.Seconds(now)))
	if el.Live {
		fmt.Fprintf(out, " (running since %s)", model.FormatLocal(el.RunningSince, loc))
	}
	fmt.Fprintln(out)
}
