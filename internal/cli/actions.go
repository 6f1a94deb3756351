package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"shopfloor/internal/client"
	"shopfloor/internal/model"
	"shopfloor/internal/wizard"
)

type actionCall func(*client.Client, context.Context, model.ActionRequest) (string, error)

// actionFlags are the optional identity fields of an action request. The
// server checks any that are set against the transaction.
type actionFlags struct {
	machine   string
	job       string
	operation int
	stage     string
	at        string
}

func (f *actionFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.machine, "machine", "", "machine code")
	fl.StringVar(&f.job, "job", "", "expected job number")
	fl.IntVar(&f.operation, "operation", 0, "expected operation number")
	fl.StringVar(&f.stage, "stage", "", "expected stage")
	fl.StringVar(&f.at, "at", "", "local event time YYYY-MM-DDTHH:mm:ss (default: now)")
}

func (f *actionFlags) request(opts *rootOptions, transNum int64) (model.ActionRequest, error) {
	loc, err := opts.loc()
	if err != nil {
		return model.ActionRequest{}, err
	}
	at := f.at
	if at == "" {
		at = model.FormatLocal(time.Now(), loc)
	} else if _, err := model.ParseLocal(at, loc); err != nil {
		return model.ActionRequest{}, err
	}
	return model.ActionRequest{
		Job:       f.job,
		Operation: f.operation,
		Machine:   f.machine,
		Employee:  opts.employee,
		TransNum:  transNum,
		StartTime: at,
		Stage:     f.stage,
	}, nil
}

func actionCmd(opts *rootOptions, name, short string, call actionCall) *cobra.Command {
	var af actionFlags
	cmd := &cobra.Command{
		Use:   name + " <transNum>",
		Short: short,
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
			req, err := af.request(opts, transNum)
			if err != nil {
				return err
			}
			msg, err := call(c, cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", msg)
			return nil
		},
	}
	af.register(cmd)
	return cmd
}

func qcCmd(opts *rootOptions) *cobra.Command {
	var (
		af      actionFlags
		result  string
		remarks string
	)
	cmd := &cobra.Command{
		Use:   "qc <transNum>",
		Short: "Record the quality-control result of a transaction",
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
			req, err := af.request(opts, transNum)
			if err != nil {
				return err
			}
			msg, err := c.QC(cmd.Context(), model.QCRequest{ActionRequest: req, Result: result, Remarks: remarks})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", msg)
			return nil
		},
	}
	af.register(cmd)
	cmd.Flags().StringVar(&result, "result", "", "pass or reject")
	cmd.Flags().StringVar(&remarks, "remarks", "", "inspection remarks")
	_ = cmd.MarkFlagRequired("result")
	return cmd
}

func scrapCmd(opts *rootOptions) *cobra.Command {
	var (
		af     actionFlags
		qty    int
		reason string
	)
	cmd := &cobra.Command{
		Use:   "scrap <transNum>",
		Short: "Record scrapped quantity against a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transNum, err := parseTransNum(args[0])
			if err != nil {
				return err
			}
			if qty <= 0 {
				return errors.New("--qty must be positive")
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			req, err := af.request(opts, transNum)
			if err != nil {
				return err
			}
			msg, err := c.Scrap(cmd.Context(), model.ScrapRequest{ActionRequest: req, Qty: qty, Reason: reason})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", msg)
			return nil
		},
	}
	af.register(cmd)
	cmd.Flags().IntVar(&qty, "qty", 0, "scrapped quantity")
	cmd.Flags().StringVar(&reason, "reason", "", "scrap reason")
	return cmd
}

func poolCmd(opts *rootOptions) *cobra.Command {
	pool := &cobra.Command{
		Use:   "pool",
		Short: "Start, pause or complete every member of a job pool",
	}
	calls := []struct {
		name string
		call func(*client.Client, context.Context, model.PoolActionRequest) (client.PoolResult, error)
	}{
		{"start", (*client.Client).StartPool},
		{"pause", (*client.Client).PausePool},
		{"complete", (*client.Client).CompletePool},
	}
	for _, pc := range calls {
		var machine, at string
		sub := &cobra.Command{
			Use:   pc.name + " <pool>",
			Short: strings.ToUpper(pc.name[:1]) + pc.name[1:] + " a job pool",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := opts.client()
				if err != nil {
					return err
				}
				res, err := pc.call(c, cmd.Context(), model.PoolActionRequest{
					Pool:      args[0],
					Machine:   machine,
					Employee:  opts.employee,
					StartTime: at,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "✓ %s\n", res.Message)
				for num, reason := range res.Skipped {
					fmt.Fprintf(out, "  skipped %d: %s\n", num, pausedColor.Sprint(reason))
				}
				return nil
			},
		}
		sub.Flags().StringVar(&machine, "machine", "", "machine code")
		sub.Flags().StringVar(&at, "at", "", "local event time YYYY-MM-DDTHH:mm:ss (default: server time)")
		pool.AddCommand(sub)
	}
	return pool
}

func startCmd(opts *rootOptions) *cobra.Command {
	var (
		scans []string
		self  bool
	)
	cmd := &cobra.Command{
		Use:   "start <transNum>",
		Short: "Start a transaction through the scan wizard",
		Long: `start walks the scan wizard: job, operation, machine and employee labels
are read from --scan files, or from stdin with labels separated by blank
lines (single-line JSON labels may also be given one per line). With
--self the employee step is skipped and the acting employee is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transNum, err := parseTransNum(args[0])
			if err != nil {
				return err
			}
			if self && opts.employee == "" {
				return errors.New("--self requires --employee")
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			tx, err := c.GetTransaction(ctx, transNum)
			if err != nil {
				return errors.Wrap(err, "load transaction")
			}
			asg, err := c.Assignments(ctx, tx.Key.Job, tx.Key.Operation)
			if err != nil {
				return errors.Wrap(err, "load assignments")
			}

			w := wizard.New(wizard.Expectation{
				TransNum:    tx.TransNum,
				Job:         tx.Key.Job,
				SerialNo:    tx.Key.SerialNo,
				Operation:   tx.Key.Operation,
				WorkCenter:  tx.Key.WorkCenter,
				Machines:    asg.Machines,
				Employees:   asg.Employees,
				SelfService: self,
				Actor:       opts.employee,
			})

			labels, err := readLabels(cmd.InOrStdin(), scans)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, label := range labels {
				if w.Step().Terminal() {
					break
				}
				step := w.Step()
				res, err := w.SubmitText(label)
				if err != nil {
					return err
				}
				if res.Valid {
					fmt.Fprintf(out, "%s %s\n", startedColor.Sprint("✓"), step)
				} else {
					fmt.Fprintf(out, "%s %s: %s\n", pausedColor.Sprint("✗"), step, res.Message)
				}
			}
			if w.Step() != wizard.StepDone {
				return errors.Newf("scan wizard incomplete: waiting for %s", w.Step())
			}

			req, err := w.Request(time.Now(), c.Location())
			if err != nil {
				return err
			}
			msg, err := c.Start(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ %s\n", msg)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&scans, "scan", nil, "file holding one decoded QR label (repeatable)")
	cmd.Flags().BoolVar(&self, "self", false, "self-service: skip the employee step")
	return cmd
}

// readLabels returns the QR labels from files, or from r when no files
// are given.
func readLabels(r io.Reader, files []string) ([]string, error) {
	if len(files) > 0 {
		labels := make([]string, 0, len(files))
		for _, f := range files {
			b, err := os.ReadFile(f)
			if err != nil {
				return nil, errors.Wrapf(err, "read scan %s", f)
			}
			labels = append(labels, string(b))
		}
		return labels, nil
	}

	var (
		labels []string
		block  []string
	)
	flush := func() {
		if len(block) == 0 {
			return
		}
		if allJSON(block) {
			labels = append(labels, block...)
		} else {
			labels = append(labels, strings.Join(block, "\n"))
		}
		block = nil
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read scans")
	}
	return labels, nil
}

func allJSON(lines []string) bool {
	for _, l := range lines {
		if !strings.HasPrefix(l, "{") {
			return false
		}
	}
	return true
}
