// hwoffloadd runs the hardware offload layer against a configured
// driver backend and exports its bookkeeping over prometheus. With the
// fake driver it doubles as a simulator for exercising flow programs
// without a NIC.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vswitchio/hwoffload/pkg/config"
	"github.com/vswitchio/hwoffload/pkg/logging"
	"github.com/vswitchio/hwoffload/pkg/netdev"
	"github.com/vswitchio/hwoffload/pkg/offload"
	"github.com/vswitchio/hwoffload/pkg/rteflow"
)

var (
	configFile string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "hwoffloadd",
	Short: "Hardware flow offload daemon",
	Long: `hwoffloadd hosts the flow offload layer of a virtual switch datapath:
it registers datapath ports with an offload driver, translates datapath
flows into hardware flow-table programs, and exports the bookkeeping
(ports, flows, id pools, miss contexts) as prometheus metrics.`,
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"configuration file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug logging")
}

func run(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log.Debug || debug)

	drv, err := rteflow.NewDriver(cfg.Driver)
	if err != nil {
		return err
	}
	if fake, ok := drv.(*rteflow.FakeDriver); ok {
		applyFakePorts(fake, cfg.Ports)
	}

	o := offload.New(drv, offload.Config{
		OuterIDMax: cfg.Pools.OuterIDMax,
		TableIDMax: cfg.Pools.TableIDMax,
	})
	defer o.Close()

	for _, p := range cfg.Ports {
		if err := o.PortAdd(netdev.NewStatic(p.Name, p.Kind), p.Port); err != nil {
			return fmt.Errorf("registering port %s: %w", p.Name, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(offload.NewCollector(o))

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}

		go func() {
			slog.Info("metrics listening", "addr", cfg.Metrics.Listen, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server", "err", err)
				stop()
			}
		}()
	}

	slog.Info("hwoffloadd started", "driver", cfg.Driver, "ports", len(cfg.Ports))
	<-ctx.Done()
	slog.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics shutdown", "err", err)
		}
	}
	return nil
}

// applyFakePorts seeds the fake driver's per-device knobs from the port
// configuration so the simulator behaves like the described hardware.
func applyFakePorts(fake *rteflow.FakeDriver, ports []config.PortConfig) {
	fake.Uplinks = make(map[string]bool)
	fake.Queues = make(map[string]int)
	fake.PortIDs = make(map[string]uint16)
	for _, p := range ports {
		if p.Kind != "dpdk" {
			continue
		}
		fake.Uplinks[p.Name] = p.Uplink
		if p.Queues > 0 {
			fake.Queues[p.Name] = p.Queues
		}
		fake.PortIDs[p.Name] = p.HWPort
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hwoffloadd: %v\n", err)
		os.Exit(1)
	}
}
