// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solstice/internal/hal"
	"github.com/Thermoquad/solstice/internal/logging"
	"github.com/Thermoquad/solstice/internal/node"
	"github.com/Thermoquad/solstice/internal/sink"
	"github.com/Thermoquad/solstice/internal/transport"
)

var (
	gatewayInterval   uint16
	gatewaySyncPeriod time.Duration
	gatewayAlign      bool
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the gateway: broadcast time syncs and collect readings",
	Long: `Run the gateway role on the configured link.

The gateway broadcasts a TIME_SYNC record immediately and then every sync
period. Each record carries the gateway's clock and the next wake instant,
which is now + interval, or the next interval boundary with --align.

Every SENSOR_DATA record is acknowledged and stored in the configured sinks
(SQLite, PostgreSQL, Redis, MQTT); readings are always logged.`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
	gatewayCmd.Flags().Uint16Var(&gatewayInterval, "interval", 60, "Wake interval advertised to sensors (seconds)")
	gatewayCmd.Flags().DurationVar(&gatewaySyncPeriod, "sync-period", 60*time.Second, "TIME_SYNC broadcast period")
	gatewayCmd.Flags().BoolVar(&gatewayAlign, "align", false, "Wake sensors on interval boundaries")
}

func runGateway(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("interval") {
		cfg.Gateway.Interval = gatewayInterval
	}
	if flags.Changed("sync-period") {
		cfg.Gateway.SyncPeriod = gatewaySyncPeriod
	}
	if flags.Changed("align") {
		cfg.Gateway.Align = gatewayAlign
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New("gateway")
	stream, connInfo, err := openLink(transport.NodeAddress(0), log)
	if err != nil {
		return err
	}
	defer stream.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		select {
		case <-stream.Done():
			log.Errorf("link closed: %v", stream.Err())
			stop()
		case <-ctx.Done():
		}
	}()

	store, err := sink.Open(ctx, cfg.Sink, log.With("sink"))
	if err != nil {
		return err
	}
	defer store.Close()

	nc := node.Context{
		Transport: stream,
		RTC:       hal.NewSoftRTC(hal.SystemClock{}, 0),
		Log:       log,
	}
	gw, err := node.NewGateway(nc, cfg.Gateway, store)
	if err != nil {
		return err
	}

	fmt.Printf("Solstice - Gateway\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Wake interval: %ds, sync every %s\n", cfg.Gateway.Interval, cfg.Gateway.SyncPeriod)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if err := gw.Run(ctx); err != nil {
		return err
	}

	received, stored, dropped, failed := gw.Counters()
	fmt.Printf("\nReadings: received=%d stored=%d dropped=%d failed=%d\n", received, stored, dropped, failed)
	stats := gw.Engine().Statistics()
	fmt.Print(stats.String())
	return nil
}
