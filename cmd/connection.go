// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/solstice/internal/logging"
	"github.com/Thermoquad/solstice/internal/transport"
)

// monitorAddress is the relay address passive tools join with by default
var monitorAddress = transport.NodeAddress(0xF0)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("SOLSTICE_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// localAddress returns link.address when configured, otherwise def
func localAddress(def transport.Address) (transport.Address, error) {
	if cfg.Link.Address == "" {
		return def, nil
	}
	return transport.ParseAddress(cfg.Link.Address)
}

// OpenConnection opens either a serial or WebSocket connection based on the
// link configuration. A monitor connection receives a copy of all relay
// traffic.
func OpenConnection(local transport.Address, monitor bool) (transport.Connection, string, error) {
	link := cfg.Link
	if link.URL != "" {
		join := transport.RelayURL
		if monitor {
			join = transport.MonitorURL
		}
		u, err := join(link.URL, local)
		if err != nil {
			return nil, "", err
		}

		password := ""
		if link.Username != "" {
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := transport.OpenWebSocket(u, link.Username, password, link.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s as %s", link.URL, local), nil
	}

	if link.Port != "" {
		conn, err := transport.OpenSerial(link.Port, link.Baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", link.Port, link.Baud), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// openLink opens the configured link as a frame transport for a node
func openLink(def transport.Address, log logging.Logger) (*transport.Stream, string, error) {
	local, err := localAddress(def)
	if err != nil {
		return nil, "", fmt.Errorf("link.address: %w", err)
	}
	conn, info, err := OpenConnection(local, false)
	if err != nil {
		return nil, "", err
	}
	return transport.NewStream(conn, local, log.With("link")), info, nil
}
