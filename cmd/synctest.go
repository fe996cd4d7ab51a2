// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solstice/internal/transport"
	"github.com/Thermoquad/solstice/pkg/wakesync"
)

var (
	syncTestTimeout int
)

var syncTestCmd = &cobra.Command{
	Use:   "sync_test",
	Short: "Test the link by waiting for a valid TIME_SYNC",
	Long: `Wait for a valid TIME_SYNC record on the connection until timeout.

This command connects to a radio bridge or relay and waits for a gateway's
TIME_SYNC broadcast. Corrupt frames and other record types are ignored.

Exit codes:
  0 - TIME_SYNC received before timeout
  1 - Timeout reached without receiving a TIME_SYNC
  2 - Connection error

Useful for checking that a gateway is on the air before deploying sensors.`,
	RunE: runSyncTest,
}

func init() {
	rootCmd.AddCommand(syncTestCmd)
	syncTestCmd.Flags().IntVar(&syncTestTimeout, "timeout", 90, "Timeout in seconds to wait for a TIME_SYNC")
}

type syncResult struct {
	src  transport.Address
	sync *wakesync.TimeSync
}

func runSyncTest(cmd *cobra.Command, args []string) error {
	local, err := localAddress(monitorAddress)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection(local, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Solstice - Sync Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", syncTestTimeout)
	fmt.Printf("Waiting for TIME_SYNC...\n\n")

	decoder := transport.NewFrameDecoder()
	buf := make([]byte, 256)

	syncChan := make(chan syncResult, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		skipped := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				frame, frameErr := decoder.DecodeByte(buf[i])
				if frameErr != nil || frame == nil {
					continue
				}
				ts, ok := timeSyncOf(frame.Payload)
				if !ok {
					skipped++
					continue
				}
				if skipped > 0 {
					fmt.Printf("(skipped %d other records)\n", skipped)
				}
				syncChan <- syncResult{src: frame.Peer, sync: ts}
				return
			}
		}
	}()

	// Wait for sync or timeout
	select {
	case res := <-syncChan:
		ts := res.sync
		fmt.Printf("SUCCESS: Received TIME_SYNC\n")
		fmt.Printf("  Gateway: %s\n", res.src)
		fmt.Printf("  Time: %s (%d)\n", wakesync.FormatUnix(ts.Timestamp), ts.Timestamp)
		fmt.Printf("  Next Wake: %s (+%ds)\n", wakesync.FormatUnix(ts.NextWakeTime), int64(ts.NextWakeTime)-int64(ts.Timestamp))
		fmt.Printf("  Interval: %ds\n", ts.WakeInterval)
		fmt.Printf("  Sequence: %d\n", ts.Sequence)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(syncTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No TIME_SYNC received within %d seconds\n", syncTestTimeout)
		os.Exit(1)
	}

	return nil
}

// timeSyncOf decodes payload and returns it when it is a TIME_SYNC
func timeSyncOf(payload []byte) (*wakesync.TimeSync, bool) {
	p, err := wakesync.Decode(payload)
	if err != nil {
		return nil, false
	}
	ts, ok := p.(*wakesync.TimeSync)
	return ts, ok
}
