// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/solstice/internal/monitor"
	"github.com/Thermoquad/solstice/internal/transport"
	"github.com/Thermoquad/solstice/pkg/wakesync"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Passively watch the network and detect errors",
	Long: `Track record errors, anomalies and sequence gaps with statistics.

This command listens without transmitting and detects:
  - Corrupt frames and records (CRC, checksum, length, unknown type)
  - Anomalous records (wake instant not in the future, zero interval,
    data count over capacity, non-zero padding)
  - Sequence gaps and duplicates per sender
  - Statistics and trends (record rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid records too.

The terminal UI also lists every sensor heard with its last sample.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all records (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

// linkMsg carries one frame or frame error from the reader goroutine
type linkMsg struct {
	frame *transport.Frame
	err   error
}

func runMonitor(cmd *cobra.Command, args []string) error {
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

	if useTUI {
		return runTUIMode(conn, connInfo)
	}
	return runTextMode(conn, connInfo)
}

// readFrames decodes bridge frames from conn until it closes. Frame errors
// before the first good frame are counted, not reported.
func readFrames(conn io.Reader, emit func(linkMsg), synced func(skipped int)) {
	decoder := transport.NewFrameDecoder()
	synchronized := false
	invalidBeforeSync := 0
	buf := make([]byte, 256)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, transport.ErrConnectionClosed) || errors.Is(err, io.EOF) {
				emit(linkMsg{err: err})
				return
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			frame, frameErr := decoder.DecodeByte(buf[i])
			if frameErr != nil {
				if synchronized {
					emit(linkMsg{err: frameErr})
				} else {
					invalidBeforeSync++
				}
				continue
			}
			if frame == nil {
				continue
			}
			if !synchronized {
				synchronized = true
				synced(invalidBeforeSync)
			}
			emit(linkMsg{frame: frame})
		}
	}
}

// printEvent prints a decoded event in highlighted format
func printEvent(ev monitor.Event) {
	timestamp := ev.At.Format("15:04:05.000")

	switch {
	case ev.DecodeErr != nil:
		fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m from %s: %v\n", timestamp, ev.Src, ev.DecodeErr)
		fmt.Printf("  Data: %s\n", wakesync.FormatHex(ev.Raw))
		fmt.Printf("  >>> RECORD REJECTED <<<\n\n")

	case len(ev.Anomalies) > 0:
		msgType := wakesync.FormatMessageType(ev.Packet.Type())
		fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X) from %s\n", timestamp, msgType, ev.Packet.Type(), ev.Src)
		fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")
		for i, a := range ev.Anomalies {
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, a.Message)
		}
		fmt.Print(wakesync.FormatPayload(ev.Packet))
		fmt.Println()

	case ev.SequenceIssue():
		fmt.Printf("[%s] \033[1;33mSEQUENCE:\033[0m %s\n\n", timestamp, ev.Summary())

	case showAll:
		fmt.Printf("From %s ", ev.Src)
		fmt.Print(wakesync.FormatPacket(ev.Packet, ev.At))
	}
}

// runTUIMode runs the monitor with the terminal UI
func runTUIMode(conn transport.Connection, connInfo string) error {
	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m)

	go readFrames(conn,
		func(msg linkMsg) { p.Send(msg) },
		func(skipped int) { p.Send(syncMsg{invalidBytes: skipped}) },
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runTextMode runs the monitor printing to stdout
func runTextMode(conn transport.Connection, connInfo string) error {
	fmt.Printf("Solstice - Network Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All records\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	mon := monitor.New()
	frameErrors := 0

	msgs := make(chan linkMsg, 64)
	go readFrames(conn,
		func(msg linkMsg) { msgs <- msg },
		func(skipped int) {
			if skipped > 0 {
				fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", skipped)
			} else {
				fmt.Printf("[SYNC] Synchronized\n\n")
			}
		},
	)

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case msg := <-msgs:
			switch {
			case msg.frame != nil:
				printEvent(mon.Observe(msg.frame.Peer, msg.frame.Payload, time.Now()))
			case errors.Is(msg.err, transport.ErrConnectionClosed) || errors.Is(msg.err, io.EOF):
				log.Printf("Connection closed")
				return nil
			default:
				frameErrors++
				fmt.Printf("[%s] \033[1;31mFRAME ERROR:\033[0m %v\n\n", time.Now().Format("15:04:05.000"), msg.err)
			}

		case <-statsTicker.C:
			stats := mon.Statistics()
			fmt.Println()
			fmt.Print(stats.String())
			if frameErrors > 0 {
				fmt.Printf("Frame Errors:    %8d\n", frameErrors)
			}
			for _, s := range mon.Sensors() {
				fmt.Printf("  Sensor %3d  %s  seq=%3d  packets=%d gaps=%d  %s\n",
					s.ID, s.Addr, s.LastSequence, s.Packets, s.Gaps, s.LastSample)
			}
			fmt.Println()
		}
	}
}
