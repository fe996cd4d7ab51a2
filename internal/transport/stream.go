// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/Thermoquad/solstice/internal/logging"
)

// txQueueSize bounds frames waiting for the writer goroutine
const txQueueSize = 64

type outbound struct {
	frame   []byte
	receipt *Receipt
}

// Stream is a Transport that exchanges bridge frames over a byte stream,
// such as a serial radio dongle or a WebSocket to a Relay
type Stream struct {
	conn  io.ReadWriteCloser
	local Address
	log   logging.Logger

	mu      sync.RWMutex
	handler ReceiveHandler

	tx        chan outbound
	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error

	FrameErrors atomic.Int64
}

// NewStream starts reader and writer goroutines on conn
func NewStream(conn io.ReadWriteCloser, local Address, log logging.Logger) *Stream {
	s := &Stream{
		conn:  conn,
		local: local,
		log:   log,
		tx:    make(chan outbound, txQueueSize),
		done:  make(chan struct{}),
	}
	go s.readLoop()
	go s.writeLoop()
	return s
}

// LocalAddress returns this node's address on the bridge
func (s *Stream) LocalAddress() Address {
	return s.local
}

// Send frames data for dst and queues it for the writer.
// The receipt resolves once the frame is written to the link.
func (s *Stream) Send(dst Address, data []byte) (*Receipt, error) {
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
	}

	frame, err := EncodeFrame(dst, data)
	if err != nil {
		return nil, err
	}

	out := outbound{frame: frame, receipt: NewReceipt()}
	select {
	case s.tx <- out:
		return out.receipt, nil
	case <-s.done:
		return nil, ErrClosed
	}
}

// SetReceiveHandler installs the receive callback
func (s *Stream) SetReceiveHandler(h ReceiveHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Done is closed when the stream stops
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the read error that stopped the stream, if any
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close stops both goroutines and closes the underlying connection
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) readLoop() {
	decoder := NewFrameDecoder()
	buf := make([]byte, 512)

	for {
		n, err := s.conn.Read(buf)
		for i := 0; i < n; i++ {
			frame, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				s.FrameErrors.Add(1)
				s.log.Debugf("bridge frame error: %v", decodeErr)
				continue
			}
			if frame == nil {
				continue
			}

			s.mu.RLock()
			h := s.handler
			s.mu.RUnlock()
			if h != nil {
				h(frame.Peer, frame.Payload)
			}
		}

		if err != nil {
			select {
			case <-s.done:
			default:
				s.errMu.Lock()
				s.err = err
				s.errMu.Unlock()
				s.log.Warnf("bridge read error: %v", err)
			}
			s.Close()
			return
		}
	}
}

func (s *Stream) writeLoop() {
	for {
		select {
		case out := <-s.tx:
			_, err := s.conn.Write(out.frame)
			out.receipt.Resolve(err)
		case <-s.done:
			for {
				select {
				case out := <-s.tx:
					out.receipt.Resolve(ErrClosed)
				default:
					return
				}
			}
		}
	}
}
