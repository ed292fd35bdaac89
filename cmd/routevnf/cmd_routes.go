package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/routevnf/pkg/audit"
	"github.com/newtron-network/routevnf/pkg/auth"
	"github.com/newtron-network/routevnf/pkg/cli"
	"github.com/newtron-network/routevnf/pkg/model"
	"github.com/newtron-network/routevnf/pkg/statedb"
	"github.com/newtron-network/routevnf/pkg/util"
)

const requestTimeout = 30 * time.Second

func newRoutesCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the controller's routes",
		Long: `List every route the controller currently holds.

Examples:
  routevnf routes
  routevnf routes --json
  routevnf routes clear --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authorize(auth.PermRoutesView); err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			routes, err := client.Routes(ctx)
			if err != nil {
				return fmt.Errorf("fetching routes: %w", err)
			}

			return printRoutes(routes, jsonOutput)
		},
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.AddCommand(newRoutesClearCmd(), newRoutesExportedCmd(&jsonOutput))
	return cmd
}

func printRoutes(routes []model.Route, jsonOutput bool) error {
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(routes)
	}
	if len(routes) == 0 {
		fmt.Println("No routes installed")
		return nil
	}

	sort.Slice(routes, func(i, j int) bool { return routes[i].ID < routes[j].ID })
	t := cli.NewTable("ID", "SRC", "DST", "PATH")
	for _, r := range routes {
		if len(r.Points) == 0 {
			t.Row(r.ID, "-", "-", "-")
			continue
		}
		t.Row(r.ID, r.Src().DeviceID, r.Dst().DeviceID,
			cli.Truncate(strings.Join(r.PathIDs(), " "), 60))
	}
	t.Flush()
	return nil
}

func newRoutesExportedCmd(jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "exported",
		Short: "List the routes exported to the state database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authorize(auth.PermRoutesView); err != nil {
				return err
			}
			if cfg.StateDB == nil {
				return fmt.Errorf("no state database configured (set statedb.addr or ROUTEVNF_REDIS_ADDR)")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			exporter, err := statedb.Dial(ctx, cfg.StateDB)
			if err != nil {
				return err
			}
			defer exporter.Close()

			routes, err := exporter.ExportedRoutes(ctx)
			if err != nil {
				return err
			}
			return printRoutes(routes, *jsonOutput)
		},
	}
}

func newRoutesClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every route on the controller",
		Long: `Delete every route and its flow rules on the controller.

A running VNF does not notice; restart it to reinstall routes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authorize(auth.PermRoutesClear); err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			if !yes && !confirm(fmt.Sprintf("Delete all routes on %s?", client.BaseURL())) {
				fmt.Println("Aborted")
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			start := time.Now()
			err = client.ClearRoutes(ctx)
			recordClear(client.BaseURL(), err, time.Since(start))
			if err != nil {
				return fmt.Errorf("clearing routes: %w", err)
			}
			fmt.Println(cli.Green("Routes cleared"))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

// recordClear writes the clear to the audit log when one is configured.
func recordClear(controller string, err error, d time.Duration) {
	if cfg.AuditLog == "" {
		return
	}
	logger, lerr := audit.NewFileLogger(cfg.AuditLog, audit.RotationConfig{})
	if lerr != nil {
		util.Warnf("Could not initialize audit logging: %v", lerr)
		return
	}
	defer logger.Close()
	audit.NewRecorder(logger, controller).Record(audit.OpClear, nil, err, d)
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
