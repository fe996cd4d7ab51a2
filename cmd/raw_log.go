// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/solstice/internal/transport"
	"github.com/Thermoquad/solstice/pkg/wakesync"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw record log in human-readable format",
	Long: `Continuously decode and display protocol records as they arrive.

Each bridge frame is shown with its receive time, source address, record type
and decoded fields. Frames that fail CRC and records that fail to decode are
reported inline.

Supports both serial and WebSocket connections. Over WebSocket the relay
sends this command a copy of all traffic.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	local, err := localAddress(monitorAddress)
	if err != nil {
		return err
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection(local, true)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Solstice - Raw Record Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := transport.NewFrameDecoder()
	buf := make([]byte, 256)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// A closed WebSocket or a hung-up port does not come back
			if errors.Is(err, transport.ErrConnectionClosed) || errors.Is(err, io.EOF) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			frame, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if frame != nil {
				fmt.Print(formatFrame(frame, time.Now()))
			}
		}
	}
}

// formatFrame renders one received frame and the record it carries
func formatFrame(frame *transport.Frame, at time.Time) string {
	p, err := wakesync.Decode(frame.Payload)
	if err != nil {
		return fmt.Sprintf("[%s] from %s: [ERROR] %v\n  Data: %s\n",
			at.Format("15:04:05.000"), frame.Peer, err, wakesync.FormatHex(frame.Payload))
	}
	header, fields, _ := strings.Cut(wakesync.FormatPacket(p, at), "\n")
	return fmt.Sprintf("%s from %s\n%s", header, frame.Peer, fields)
}
