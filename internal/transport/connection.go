// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// Connection is a byte stream to a radio bridge: a local serial dongle or a
// relay reached over WebSocket. Stream frames it with HDLC.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// ErrConnectionClosed reports that the WebSocket peer went away. Read
// errors from a dropped socket wrap it so callers can test with errors.Is.
var ErrConnectionClosed = errors.New("websocket connection closed")

// serialLink adapts a serial port. The port already satisfies the byte
// stream contract; only errors are decorated.
type serialLink struct {
	name string
	port serial.Port
}

// Read blocks until the dongle delivers at least one byte.
func (l *serialLink) Read(p []byte) (int, error) {
	n, err := l.port.Read(p)
	if err != nil {
		return n, fmt.Errorf("serial %s: %w", l.name, err)
	}
	return n, nil
}

// Write hands p to the UART driver.
func (l *serialLink) Write(p []byte) (int, error) {
	n, err := l.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("serial %s: %w", l.name, err)
	}
	return n, nil
}

func (l *serialLink) Close() error {
	return l.port.Close()
}

// socketLink flattens binary WebSocket messages into one byte stream.
// Message boundaries carry no meaning since HDLC flags delimit frames.
type socketLink struct {
	conn    *websocket.Conn
	current io.Reader // Unread remainder of the message in progress
	err     error     // Sticky once the socket fails
}

// NewSocketConnection wraps an established WebSocket as a Connection.
func NewSocketConnection(conn *websocket.Conn) Connection {
	return &socketLink{conn: conn}
}

// Read returns bytes from the current binary message, advancing to the next
// one when it is exhausted. Text and control messages are skipped.
func (l *socketLink) Read(p []byte) (int, error) {
	for l.err == nil {
		if l.current == nil {
			kind, r, err := l.conn.NextReader()
			if err != nil {
				l.err = fmt.Errorf("%w: %w", ErrConnectionClosed, err)
				break
			}
			if kind != websocket.BinaryMessage {
				continue
			}
			l.current = r
		}

		n, err := l.current.Read(p)
		if err == io.EOF {
			l.current = nil
			err = nil
		}
		if err != nil {
			l.err = fmt.Errorf("%w: %w", ErrConnectionClosed, err)
			return n, l.err
		}
		if n > 0 {
			return n, nil
		}
	}
	return 0, l.err
}

// Write sends p as a single binary message.
func (l *socketLink) Write(p []byte) (int, error) {
	if err := l.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("websocket write: %w", err)
	}
	return len(p), nil
}

func (l *socketLink) Close() error {
	return l.conn.Close()
}

// OpenSerial opens the serial port of a radio bridge dongle at 8N1
func OpenSerial(portName string, baudRate int) (Connection, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	return &serialLink{name: portName, port: port}, nil
}

// ErrUnsupportedScheme is returned for relay URLs that are not ws:// or wss://
var ErrUnsupportedScheme = errors.New("unsupported URL scheme (use ws:// or wss://)")

const (
	handshakeTimeout = 10 * time.Second
	dialTimeout      = 15 * time.Second
)

// OpenWebSocket dials a relay. Basic auth is sent when both username and
// password are set.
func OpenWebSocket(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+token)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial relay (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	return NewSocketConnection(conn), nil
}

// RelayURL appends the joining address to a relay URL
func RelayURL(base string, addr Address) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	q := u.Query()
	q.Set("addr", addr.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// MonitorURL is RelayURL for a client that receives a copy of every frame
func MonitorURL(base string, addr Address) (string, error) {
	u, err := RelayURL(base, addr)
	if err != nil {
		return "", err
	}
	return u + "&monitor=1", nil
}
