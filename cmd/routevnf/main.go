// routevnf - routing VNF for an SDN controller
//
// routevnf mirrors the controller's topology from its event stream and
// keeps one shortest-path route installed for every pair of connected
// hosts, repairing routes as links, devices and hosts come and go.
//
// Usage:
//
//	routevnf run                    Run the VNF until interrupted
//	routevnf routes                 List the controller's routes
//	routevnf routes clear           Delete every route on the controller
//	routevnf topology               Show the controller's topology snapshot
//	routevnf audit                  Query the audit log
//	routevnf version                Print version information
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/routevnf/pkg/auth"
	"github.com/newtron-network/routevnf/pkg/controller"
	"github.com/newtron-network/routevnf/pkg/settings"
	"github.com/newtron-network/routevnf/pkg/util"
	"github.com/newtron-network/routevnf/pkg/version"
)

var (
	configPath string
	debug      bool
	logJSON    bool

	// Flag overrides; empty means "use settings".
	baseURL  string
	username string
	password string

	cfg *settings.Settings
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "routevnf",
	Short:             "Routing VNF for an SDN controller",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `routevnf keeps a shortest-path route installed between every pair of
hosts known to the controller, following topology changes as they are
streamed.

Configuration is read from ~/.routevnf/config.yaml (or --config), then
ROUTEVNF_* environment variables, then command-line flags.

  routevnf run --base-url http://controller:8181/onos/sdn-routing-rest/`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = settings.LoadFrom(configPath)
		} else {
			cfg, err = settings.Load()
		}
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
			return err
		}

		if baseURL != "" {
			cfg.Controller.BaseURL = baseURL
		}
		if username != "" {
			cfg.Controller.Username = username
		}
		if password != "" {
			cfg.Controller.Password = password
		}
		if debug {
			cfg.Debug = true
		}

		if logJSON {
			util.SetJSONFormat()
		}
		if cfg.Debug {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("info")
		}

		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "configuration file (default ~/.routevnf/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log in JSON")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "base URL of the controller API")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "login username for the controller API")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "login password for the controller API")

	rootCmd.AddCommand(
		newRunCmd(),
		newRoutesCmd(),
		newTopologyCmd(),
		newAuditCmd(),
		newVersionCmd(),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if version.Version == "dev" {
				fmt.Println("routevnf dev build (use 'make build' for version info)")
			} else {
				fmt.Printf("routevnf %s\n", version.Info())
			}
		},
	}
}

// authorize checks the current user against the configured access block.
func authorize(p auth.Permission) error {
	return auth.NewChecker(cfg.Access).Check(p)
}

// newClient connects to the configured controller.
func newClient() (*controller.Client, error) {
	return controller.NewClient(cfg.GetBaseURL(), cfg.GetUsername(), cfg.GetPassword())
}
