package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/newtron-network/routevnf/pkg/auth"
	"github.com/newtron-network/routevnf/pkg/cli"
	"github.com/newtron-network/routevnf/pkg/controller"
)

func newTopologyCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Show the controller's topology snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authorize(auth.PermTopologyView); err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			topo, err := client.Topology(ctx)
			if err != nil {
				return fmt.Errorf("fetching topology: %w", err)
			}
			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(topo)
			}
			printTopology(topo)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")
	return cmd
}

func printTopology(topo *controller.Topology) {
	fmt.Println(cli.Bold(fmt.Sprintf("Devices (%d)", len(topo.Devices))))
	t := cli.NewTable("ID", "TYPE").WithPrefix("  ")
	for _, d := range topo.Devices {
		t.Row(d.ID, d.Type)
	}
	t.Flush()

	fmt.Println()
	fmt.Println(cli.Bold(fmt.Sprintf("Hosts (%d)", len(topo.Hosts))))
	t = cli.NewTable("ID", "MAC", "VLAN", "LOCATION").WithPrefix("  ")
	for _, h := range topo.Hosts {
		t.Row(h.ID, h.MAC, strconv.Itoa(int(h.VLAN)),
			h.Location.ID+"/"+controller.PortString(h.Location.Port))
	}
	t.Flush()

	fmt.Println()
	fmt.Println(cli.Bold(fmt.Sprintf("Links (%d)", len(topo.Links))))
	t = cli.NewTable("SRC", "DST", "TYPE", "STATE").WithPrefix("  ")
	for _, l := range topo.Links {
		state := l.State
		if state == "ACTIVE" {
			state = cli.Green(state)
		} else {
			state = cli.Yellow(state)
		}
		t.Row(pointString(l.Src), pointString(l.Dst), l.Type, state)
	}
	t.Flush()
}

func pointString(p controller.ConnectPointDTO) string {
	if p.Port == nil {
		return p.ID
	}
	return p.ID + "/" + controller.PortString(*p.Port)
}
