// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solstice/internal/hal"
	"github.com/Thermoquad/solstice/internal/logging"
	"github.com/Thermoquad/solstice/internal/node"
	"github.com/Thermoquad/solstice/internal/transport"
)

var (
	sensorID      uint8
	sensorGateway string
	sensorCycles  int
	sensorDrift   float64
)

var sensorCmd = &cobra.Command{
	Use:   "sensor",
	Short: "Run sensor wake cycles",
	Long: `Run the sensor role on the configured link.

Each cycle the sensor waits for a TIME_SYNC from the gateway, sets its clock,
sends one SENSOR_DATA sample, waits briefly for the ACK and sleeps until the
announced wake instant. Sleep is armed on both the RTC alarm and a backup
timer; without a usable sync the sensor sleeps for the fallback period.

The sample comes from the configured source (synthetic or Modbus).
Send SIGUSR1 to wake a sleeping sensor as if its button was pressed.`,
	RunE: runSensor,
}

func init() {
	rootCmd.AddCommand(sensorCmd)
	sensorCmd.Flags().Uint8Var(&sensorID, "id", 1, "Sensor ID")
	sensorCmd.Flags().StringVar(&sensorGateway, "gateway", "", "Gateway radio address (default from config)")
	sensorCmd.Flags().IntVar(&sensorCycles, "cycles", 0, "Number of wake cycles (0 = run forever)")
	sensorCmd.Flags().Float64Var(&sensorDrift, "drift", 0, "Simulated RTC drift (ppm)")
}

func runSensor(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("id") {
		cfg.Sensor.ID = sensorID
	}
	if flags.Changed("gateway") {
		cfg.Sensor.Gateway = sensorGateway
	}
	if flags.Changed("drift") {
		cfg.Sensor.DriftPPM = sensorDrift
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	source, err := cfg.SensorSource()
	if err != nil {
		return err
	}

	log := logging.New(fmt.Sprintf("sensor-%d", cfg.Sensor.ID))
	stream, connInfo, err := openLink(transport.NodeAddress(cfg.Sensor.ID), log)
	if err != nil {
		return err
	}
	defer stream.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rtc := hal.NewSoftRTC(hal.SystemClock{}, cfg.Sensor.DriftPPM)
	power := hal.NewSimPower(hal.SystemClock{}, rtc)

	button := make(chan os.Signal, 1)
	signal.Notify(button, syscall.SIGUSR1)
	defer signal.Stop(button)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stream.Done():
				log.Errorf("link closed: %v", stream.Err())
				stop()
				return
			case <-button:
				power.PressButton()
			}
		}
	}()

	sensor, err := node.NewSensor(node.Context{
		Transport: stream,
		RTC:       rtc,
		Power:     power,
		Log:       log,
	}, cfg.Sensor, source)
	if err != nil {
		return err
	}

	fmt.Printf("Solstice - Sensor %d\n", cfg.Sensor.ID)
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Gateway: %s, source: %s\n", cfg.Sensor.Gateway, cfg.Sensor.Source)
	if sensorCycles > 0 {
		fmt.Printf("Cycles: %d\n", sensorCycles)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if err := sensor.Run(ctx, sensorCycles); err != nil {
		return err
	}

	count, slept := power.Sleeps()
	fmt.Printf("\nSlept %d times, %s total\n", count, slept)
	return nil
}
