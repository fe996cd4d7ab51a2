// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/solstice/internal/config"
	"github.com/Thermoquad/solstice/internal/logging"
)

var (
	configPath string
	debug      bool

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Loaded in PersistentPreRunE, flags applied
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "solstice",
	Short: "Wake-synchronized sensor network",
	Long: `Solstice - A gateway and battery sensor nodes that share one wake schedule.

The gateway broadcasts TIME_SYNC records announcing when sensors should next
wake. Sensors wake, wait for a sync, send one SENSOR_DATA sample, collect the
gateway's ACK and sleep until the announced instant.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]   (radio bridge dongle)
  WebSocket: --url ws://host:8765/ [--username user] (solstice air relay)

For WebSocket authentication, the password is read from the SOLSTICE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port of the radio bridge")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "Relay WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// loadConfig reads --config and lets explicitly set flags override it
func loadConfig(cmd *cobra.Command, args []string) error {
	if debug {
		logging.EnableDebug()
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		loaded.Link.Port = portName
	}
	if flags.Changed("baud") || loaded.Link.Baud == 0 {
		loaded.Link.Baud = baudRate
	}
	if flags.Changed("url") {
		loaded.Link.URL = wsURL
	}
	if flags.Changed("username") {
		loaded.Link.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		loaded.Link.NoSSLVerify = wsNoSSLVerify
	}

	cfg = loaded
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
