// Package cli implements the shopfloorctl commands.
package cli

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"shopfloor/internal/client"
	"shopfloor/internal/jobs"
)

const (
	defaultServer = "http://localhost:8080"
	serverEnv     = "SHOPFLOOR_SERVER"
	employeeEnv   = "SHOPFLOOR_EMPLOYEE"
)

type rootOptions struct {
	server   string
	employee string
	location string
	noColor  bool
}

// NewRootCmd builds the shopfloorctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "shopfloorctl",
		Short: "Track shop-floor job operations from the terminal",
		Long: `shopfloorctl lists job transactions, drives the scan wizard that starts
work, and pauses, completes, inspects, verifies and scraps transactions.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr(serverEnv, defaultServer), "shop-floor API base URL")
	flags.StringVarP(&opts.employee, "employee", "e", os.Getenv(employeeEnv), "acting employee code")
	flags.StringVar(&opts.location, "location", "Local", "time zone of local timestamps")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(listCmd(opts))
	root.AddCommand(logCmd(opts))
	root.AddCommand(startCmd(opts))
	root.AddCommand(actionCmd(opts, "pause", "Pause a running transaction", (*client.Client).Pause))
	root.AddCommand(actionCmd(opts, "complete", "Complete the current stage of a transaction", (*client.Client).Complete))
	root.AddCommand(actionCmd(opts, "verify", "Verify a transaction and close it", (*client.Client).Verify))
	root.AddCommand(qcCmd(opts))
	root.AddCommand(scrapCmd(opts))
	root.AddCommand(poolCmd(opts))
	root.AddCommand(watchCmd(opts))
	root.AddCommand(elapsedCmd(opts))
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (o *rootOptions) loc() (*time.Location, error) {
	if o.location == "" || o.location == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(o.location)
	if err != nil {
		return nil, errors.Wrapf(err, "load location %q", o.location)
	}
	return loc, nil
}

func (o *rootOptions) client() (*client.Client, error) {
	loc, err := o.loc()
	if err != nil {
		return nil, err
	}
	return client.New(o.server, client.WithEmployee(o.employee), client.WithLocation(loc))
}

var (
	startedColor   = color.New(color.FgGreen, color.Bold)
	pausedColor    = color.New(color.FgYellow)
	completedColor = color.New(color.FgCyan)
	idleColor      = color.New(color.Faint)
)

// statusLabel renders a status for terminal output.
func statusLabel(s jobs.Status) string {
	switch s {
	case jobs.StatusStarted:
		return startedColor.Sprint("STARTED")
	case jobs.StatusPaused:
		return pausedColor.Sprint("PAUSED")
	case jobs.StatusCompleted:
		return completedColor.Sprint("COMPLETED")
	}
	return idleColor.Sprint("IDLE")
}
