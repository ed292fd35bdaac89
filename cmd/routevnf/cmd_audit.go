package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/routevnf/pkg/audit"
	"github.com/newtron-network/routevnf/pkg/auth"
	"github.com/newtron-network/routevnf/pkg/cli"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "View the audit log",
		Long: `View the audit log of route changes sent to the controller.

Every batch the VNF flushes is logged with:
  - Timestamp
  - Operation (routes.create, routes.delete, routes.clear)
  - Routes affected
  - Success/failure status

Examples:
  routevnf audit list --last 1h
  routevnf audit list --route h1 --failures`,
	}
	cmd.AddCommand(newAuditListCmd())
	return cmd
}

func newAuditListCmd() *cobra.Command {
	var (
		operation  string
		route      string
		last       string
		limit      int
		failures   bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authorize(auth.PermAuditView); err != nil {
				return err
			}
			if cfg.AuditLog == "" {
				return fmt.Errorf("no audit log configured (set audit_log or ROUTEVNF_AUDIT_LOG)")
			}

			filter := audit.Filter{
				Operation:   operation,
				Route:       route,
				Limit:       limit,
				FailureOnly: failures,
			}
			if last != "" {
				duration, err := time.ParseDuration(last)
				if err != nil {
					return fmt.Errorf("invalid duration: %s", last)
				}
				filter.StartTime = time.Now().Add(-duration)
			}

			logger, err := audit.NewFileLogger(cfg.AuditLog, audit.RotationConfig{})
			if err != nil {
				return fmt.Errorf("opening audit log: %w", err)
			}
			defer logger.Close()

			events, err := logger.Query(filter)
			if err != nil {
				return fmt.Errorf("querying audit log: %w", err)
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(events)
			}
			if len(events) == 0 {
				fmt.Println("No audit events found")
				return nil
			}

			t := cli.NewTable("TIMESTAMP", "OPERATION", "ROUTES", "DURATION", "STATUS")
			for _, event := range events {
				t.Row(
					event.Timestamp.Format("2006-01-02 15:04:05"),
					event.Operation,
					fmt.Sprintf("%d", event.Count),
					event.Duration.Round(time.Millisecond).String(),
					cli.Status(event.Success),
				)
			}
			t.Flush()
			fmt.Println()
			fmt.Println(audit.Summarize(events))
			return nil
		},
	}
	cmd.Flags().StringVar(&operation, "operation", "", "filter by operation")
	cmd.Flags().StringVar(&route, "route", "", "filter by route id or host")
	cmd.Flags().StringVar(&last, "last", "", "show events from last duration (e.g., 24h)")
	cmd.Flags().IntVar(&limit, "limit", 100, "show at most this many of the newest events")
	cmd.Flags().BoolVar(&failures, "failures", false, "show only failed operations")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")
	return cmd
}
