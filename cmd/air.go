// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solstice/internal/logging"
	"github.com/Thermoquad/solstice/internal/transport"
)

var (
	airListen   string
	airLossRate float64
	airUsername string
)

var airCmd = &cobra.Command{
	Use:   "air",
	Short: "Run a WebSocket relay that plays the radio medium",
	Long: `Serve a WebSocket relay so gateway, sensor and monitor processes can talk
without radio hardware.

Nodes join with their radio address and exchange the same bridge frames a
serial dongle would carry. Unicast frames reach one node; broadcast frames
reach every other node. Monitors (monitor, raw_log, sync_test) receive a copy
of all traffic.

With --username, clients must authenticate with HTTP Basic auth; the password
is read from SOLSTICE_PASSWORD or prompted. --loss drops that fraction of
frames at random to exercise the protocol's loss handling.`,
	RunE: runAir,
}

func init() {
	rootCmd.AddCommand(airCmd)
	airCmd.Flags().StringVar(&airListen, "listen", ":8765", "Listen address")
	airCmd.Flags().Float64Var(&airLossRate, "loss", 0, "Fraction of frames to drop (0..1)")
	airCmd.Flags().StringVar(&airUsername, "relay-username", "", "Require HTTP Basic auth with this username")
}

// randomLoss drops frames with probability rate
func randomLoss(rate float64, rng *rand.Rand) transport.LossFunc {
	var mu sync.Mutex
	return func(_, _ transport.Address, _ []byte) bool {
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64() < rate
	}
}

func runAir(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Relay.Listen = airListen
	}
	if flags.Changed("loss") {
		cfg.Relay.LossRate = airLossRate
	}
	if flags.Changed("relay-username") {
		cfg.Relay.Username = airUsername
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New("air")
	relay := transport.NewRelay(log)
	if cfg.Relay.Username != "" {
		password, err := GetPassword()
		if err != nil {
			return err
		}
		relay.Username = cfg.Relay.Username
		relay.Password = password
	}
	if cfg.Relay.LossRate > 0 {
		relay.SetLoss(randomLoss(cfg.Relay.LossRate, rand.New(rand.NewSource(time.Now().UnixNano()))))
	}

	srv := &http.Server{
		Addr:              cfg.Relay.Listen,
		Handler:           relay,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Solstice - Air Relay\n")
	fmt.Printf("Listening: %s\n", cfg.Relay.Listen)
	if cfg.Relay.LossRate > 0 {
		fmt.Printf("Loss rate: %.1f%%\n", cfg.Relay.LossRate*100)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server: %w", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("relay shutdown: %v", err)
		}
	}

	fmt.Printf("\nFrames forwarded: %d, dropped: %d\n", relay.Forwarded.Load(), relay.Dropped.Load())
	return nil
}
