// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"crypto/subtle"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/Thermoquad/solstice/internal/logging"
	"github.com/gorilla/websocket"
)

// relayQueueSize bounds frames waiting for one client's writer
const relayQueueSize = 64

// Relay is a WebSocket hub that plays the radio medium for networked nodes.
// Clients join with ?addr=aa:bb:cc:dd:ee:ff and exchange bridge frames; the
// relay rewrites the peer field from destination to source on the way through.
// Clients joining with monitor=1 also receive a copy of every frame, as a
// radio in promiscuous mode would.
type Relay struct {
	// Optional HTTP Basic credentials required from clients
	Username string
	Password string

	upgrader websocket.Upgrader
	log      logging.Logger

	mu      sync.RWMutex
	clients map[Address]*relayClient
	loss    LossFunc
	taps    []TapFunc

	Forwarded atomic.Int64
	Dropped   atomic.Int64
}

type relayClient struct {
	addr    Address
	monitor bool
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

func (c *relayClient) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *relayClient) stop() {
	c.once.Do(func() { close(c.done) })
}

// NewRelay creates an empty relay
func NewRelay(log logging.Logger) *Relay {
	return &Relay{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[Address]*relayClient),
	}
}

// SetLoss installs a loss function; nil disables loss
func (r *Relay) SetLoss(fn LossFunc) {
	r.mu.Lock()
	r.loss = fn
	r.mu.Unlock()
}

// Tap registers an observer that sees every routed frame
func (r *Relay) Tap(fn TapFunc) {
	r.mu.Lock()
	r.taps = append(r.taps, fn)
	r.mu.Unlock()
}

// Clients returns the addresses currently joined
func (r *Relay) Clients() []Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Address, 0, len(r.clients))
	for addr := range r.clients {
		out = append(out, addr)
	}
	return out
}

// ServeHTTP upgrades a client and relays its frames until it disconnects
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r.Password != "" && !r.authorized(req) {
		w.Header().Set("WWW-Authenticate", `Basic realm="solstice"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	addr, err := ParseAddress(req.URL.Query().Get("addr"))
	if err != nil || addr.IsBroadcast() {
		http.Error(w, "Invalid addr", http.StatusBadRequest)
		return
	}

	client := &relayClient{
		addr:    addr,
		monitor: req.URL.Query().Get("monitor") == "1",
		send:    make(chan []byte, relayQueueSize),
		done:    make(chan struct{}),
	}

	// Reserved before the handshake; frames routed early wait in send
	r.mu.Lock()
	if _, ok := r.clients[addr]; ok {
		r.mu.Unlock()
		http.Error(w, "Address in use", http.StatusConflict)
		return
	}
	r.clients[addr] = client
	r.mu.Unlock()

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.remove(client)
		return
	}
	client.conn = conn

	r.log.Infof("relay: %s joined", addr)
	go r.writeLoop(client)
	r.readLoop(client)

	r.remove(client)
	client.stop()
	conn.Close()
	r.log.Infof("relay: %s left", addr)
}

func (r *Relay) authorized(req *http.Request) bool {
	user, pass, ok := req.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(r.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(r.Password)) == 1
	return userOK && passOK
}

func (r *Relay) remove(c *relayClient) {
	r.mu.Lock()
	if r.clients[c.addr] == c {
		delete(r.clients, c.addr)
	}
	r.mu.Unlock()
}

func (r *Relay) readLoop(c *relayClient) {
	decoder := NewFrameDecoder()
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		for _, b := range data {
			frame, err := decoder.DecodeByte(b)
			if err != nil {
				r.log.Debugf("relay: bad frame from %s: %v", c.addr, err)
				continue
			}
			if frame != nil {
				r.route(c.addr, frame.Peer, frame.Payload)
			}
		}
	}
}

func (r *Relay) writeLoop(c *relayClient) {
	for {
		select {
		case frame := <-c.send:
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.stop()
				return
			}
		case <-c.done:
			return
		}
	}
}

// route forwards payload from src to dst, or to every other client on broadcast
func (r *Relay) route(src, dst Address, payload []byte) {
	r.mu.RLock()
	loss := r.loss
	taps := r.taps
	var targets []*relayClient
	if dst.IsBroadcast() {
		for addr, c := range r.clients {
			if addr != src {
				targets = append(targets, c)
			}
		}
	} else {
		if c, ok := r.clients[dst]; ok {
			targets = append(targets, c)
		}
		for addr, c := range r.clients {
			if c.monitor && addr != src && addr != dst {
				targets = append(targets, c)
			}
		}
	}
	r.mu.RUnlock()

	for _, tap := range taps {
		tap(src, dst, payload)
	}

	if len(targets) == 0 {
		if !dst.IsBroadcast() {
			r.Dropped.Add(1)
			r.log.Debugf("relay: no peer %s for frame from %s", dst, src)
		}
		return
	}

	frame, err := EncodeFrame(src, payload)
	if err != nil {
		r.Dropped.Add(1)
		return
	}

	for _, c := range targets {
		if loss != nil && loss(src, c.addr, payload) {
			r.Dropped.Add(1)
			continue
		}
		if c.enqueue(frame) {
			r.Forwarded.Add(1)
		} else {
			r.Dropped.Add(1)
		}
	}
}
