package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/newtron-network/routevnf/pkg/audit"
	"github.com/newtron-network/routevnf/pkg/auth"
	"github.com/newtron-network/routevnf/pkg/metrics"
	"github.com/newtron-network/routevnf/pkg/routing"
	"github.com/newtron-network/routevnf/pkg/statedb"
	"github.com/newtron-network/routevnf/pkg/status"
	"github.com/newtron-network/routevnf/pkg/util"
	"github.com/newtron-network/routevnf/pkg/vnf"
)

func newRunCmd() *cobra.Command {
	var askPassword bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the VNF until interrupted",
		Long: `Run the routing VNF.

The VNF listens on the controller's event stream, loads the topology,
reconciles the routes already on the controller and then keeps every
host pair routed. Controller failures restart the VNF with backoff;
unknown events stop it.

Examples:
  routevnf run
  routevnf run --ask-password --debug
  ROUTEVNF_METRICS_ADDR=:9090 routevnf run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authorize(auth.PermVNFRun); err != nil {
				return err
			}
			if askPassword {
				pass, err := promptPassword()
				if err != nil {
					return err
				}
				cfg.Controller.Password = pass
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx)
		},
	}
	cmd.Flags().BoolVar(&askPassword, "ask-password", false, "prompt for the controller password")
	return cmd
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--ask-password needs a terminal on stdin")
	}
	fmt.Fprint(os.Stderr, "Controller password: ")
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pass), nil
}

func run(ctx context.Context) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	m := metrics.New()
	var observers routing.Observers

	if cfg.AuditLog != "" {
		logger, err := audit.NewFileLogger(cfg.AuditLog, audit.RotationConfig{
			MaxSize:    10 * 1024 * 1024, // 10MB
			MaxBackups: 10,
		})
		if err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		} else {
			defer logger.Close()
			observers = append(observers, audit.NewRecorder(logger, client.BaseURL()))
		}
	}

	if cfg.StateDB != nil {
		exporter, err := statedb.Dial(ctx, cfg.StateDB)
		if err != nil {
			util.Warnf("Could not connect to state export: %v", err)
		} else {
			defer exporter.Close()
			observers = append(observers, exporter)
		}
	}

	sup := vnf.NewSupervisor(client, vnf.Config{
		SettleDelay: cfg.GetSettleDelay(),
		Observer:    observers,
		Metrics:     m,
	}, cfg.GetRestartDelay(), cfg.GetMaxRestartDelay())

	util.Infof("Routing VNF starting against %s", client.BaseURL())

	g, gctx := errgroup.WithContext(ctx)
	if addr := cfg.MetricsAddr; addr != "" {
		g.Go(func() error {
			return status.Serve(gctx, addr, status.NewRouter(sup, m.Handler()))
		})
	}
	g.Go(func() error {
		err := sup.Run(gctx)
		if err == nil {
			util.Info("Routing VNF stopped")
		}
		return err
	})
	return g.Wait()
}
