// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/solstice/internal/monitor"
	"github.com/Thermoquad/solstice/internal/transport"
	"github.com/Thermoquad/solstice/pkg/wakesync"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	mon           *monitor.Monitor
	sensors       table.Model
	errorLog      []errorLogEntry
	maxLogEntries int
	frameErrors   uint64
	synchronized  bool
	invalidBytes  int
	closed        bool
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type syncMsg struct {
	invalidBytes int
}

// formatSpan formats a duration in milliseconds to a human-friendly string
func formatSpan(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	unit := func(n uint64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, unit(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, unit(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, unit(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, unit(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func newSensorTable() table.Model {
	columns := []table.Column{
		{Title: "ID", Width: 4},
		{Title: "Address", Width: 17},
		{Title: "Seq", Width: 4},
		{Title: "Pkts", Width: 6},
		{Title: "Gaps", Width: 5},
		{Title: "Last Seen", Width: 12},
		{Title: "Sample", Width: 40},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(6),
		table.WithFocused(false),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.NoColor{}).Bold(false)
	t.SetStyles(styles)
	return t
}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		mon:           monitor.New(),
		sensors:       newSensorTable(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.refreshSensors()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case linkMsg:
		m.handleLink(msg)
	}

	return m, nil
}

// handleLink accounts for one frame or frame error
func (m *model) handleLink(msg linkMsg) {
	if msg.frame == nil {
		if errors.Is(msg.err, transport.ErrConnectionClosed) || errors.Is(msg.err, io.EOF) {
			m.closed = true
			m.addLogEntry("Connection closed", true)
			return
		}
		m.frameErrors++
		m.addLogEntry(fmt.Sprintf("FRAME ERROR: %v", msg.err), true)
		return
	}

	ev := m.mon.Observe(msg.frame.Peer, msg.frame.Payload, time.Now())
	switch {
	case ev.IsError() || ev.SequenceIssue():
		m.addLogEntry(ev.Summary(), true)
	case m.showAll:
		m.addLogEntry(ev.Summary()+" (valid)", false)
	}
	if _, ok := ev.Packet.(*wakesync.SensorData); ok {
		m.refreshSensors()
	}
}

func (m *model) refreshSensors() {
	sensors := m.mon.Sensors()
	rows := make([]table.Row, 0, len(sensors))
	for _, s := range sensors {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", s.ID),
			s.Addr.String(),
			fmt.Sprintf("%d", s.LastSequence),
			fmt.Sprintf("%d", s.Packets),
			fmt.Sprintf("%d", s.Gaps),
			formatSpan(uint64(time.Since(s.LastSeen).Milliseconds())) + " ago",
			s.LastSample,
		})
	}
	m.sensors.SetRows(rows)
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("SOLSTICE - NETWORK MONITOR"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All records"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Press 'q' to quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.closed:
		s.WriteString(errorStyle.Render("✗ Connection closed"))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	stats := m.mon.Statistics()
	totalErrors := stats.DecodeErrors() + stats.AnomalousPackets
	var validPercent, errorPercent float64
	if stats.TotalPackets > 0 {
		validPercent = float64(stats.ValidPackets) * 100.0 / float64(stats.TotalPackets)
		errorPercent = float64(totalErrors) * 100.0 / float64(stats.TotalPackets)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.TotalPackets)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.ValidPackets, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d\n",
		statsLabelStyle.Render("TIME_SYNC:"), stats.TimeSyncs,
		statsLabelStyle.Render("SENSOR_DATA:"), stats.DataPackets,
		statsLabelStyle.Render("ACK:"), stats.Acks,
	))

	if stats.DecodeErrors() > 0 || m.frameErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Frame:"), errorStyle.Render(fmt.Sprintf("%d", m.frameErrors)),
			statsLabelStyle.Render("Checksum:"), errorStyle.Render(fmt.Sprintf("%d", stats.ChecksumErrors)),
			statsLabelStyle.Render("Length:"), errorStyle.Render(fmt.Sprintf("%d", stats.LengthErrors)),
			statsLabelStyle.Render("Unknown:"), errorStyle.Render(fmt.Sprintf("%d", stats.UnknownTypes)),
		))
	}

	if stats.AnomalousPackets > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", stats.AnomalousPackets)),
			headerStyle.Render("wake not future"), stats.WakeNotFuture,
			headerStyle.Render("zero interval"), stats.ZeroIntervals,
			headerStyle.Render("invalid count"), stats.InvalidCounts,
			headerStyle.Render("padding"), stats.NonZeroPadding,
		))
	}

	if stats.SequenceGaps > 0 || stats.SequenceDuplicate > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Seq Gaps:"), warningStyle.Render(fmt.Sprintf("%d", stats.SequenceGaps)),
			statsLabelStyle.Render("Seq Dups:"), warningStyle.Render(fmt.Sprintf("%d", stats.SequenceDuplicate)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Record Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f rec/s", stats.PacketRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Gateway schedule (only shown once a sync was heard)
	if ts, ok := m.mon.LastSync(); ok {
		s.WriteString(statsLabelStyle.Render("Gateway Schedule:"))
		s.WriteString("\n")
		schedule := fmt.Sprintf("%s %s   %s %s   %s %s",
			statsLabelStyle.Render("Time:"), statsValueStyle.Render(wakesync.FormatUnix(ts.Timestamp)),
			statsLabelStyle.Render("Next Wake:"), statsValueStyle.Render(wakesync.FormatUnix(ts.NextWakeTime)),
			statsLabelStyle.Render("Interval:"), statsValueStyle.Render(formatSpan(uint64(ts.WakeInterval)*1000)),
		)
		s.WriteString(boxStyle.Render(schedule))
		s.WriteString("\n\n")
	}

	// Sensors
	s.WriteString(statsLabelStyle.Render("Sensors:"))
	s.WriteString("\n")
	if len(m.sensors.Rows()) == 0 {
		s.WriteString(boxStyle.Render(headerStyle.Render("(no sensors heard yet)")))
	} else {
		s.WriteString(boxStyle.Render(m.sensors.View()))
	}
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 30 // Reserve space for header, stats and sensors
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
