// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// SessionState is one of the five lifecycle states a Session moves
// through: Fresh (no socket) -> Handshaking (socket open, blocking,
// awaiting ConnectionResponse) -> Active (socket registered with the
// reader) -> Failed (transport error, eligible for restart) / Stopped
// (user-initiated close, not restarted).
type SessionState int32

const (
	SessionFresh SessionState = iota
	SessionHandshaking
	SessionActive
	SessionFailed
	SessionStopped
)

func (s SessionState) String() string {
	switch s {
	case SessionFresh:
		return "fresh"
	case SessionHandshaking:
		return "handshaking"
	case SessionActive:
		return "active"
	case SessionFailed:
		return "failed"
	case SessionStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Callback is invoked once per delivered event payload. A true return
// acknowledges the block to the server; false or a panic leaves it
// unacknowledged (the server will retransmit).
type Callback func(payload []byte) bool

// Session is one logical subscription: a monitor id, a user callback, and
// an owned transport that is dialed, handshaken, read from, and restarted
// across its lifetime without ever changing identity.
type Session struct {
	monitorID uint32
	callback  Callback
	transport transportConfig
	username  string
	password  string
	logger    *slog.Logger

	mu    sync.Mutex
	conn  net.Conn
	state SessionState

	// restarting guards against the reader launching two concurrent
	// reconnect goroutines for the same session (reader.go).
	restarting atomic.Bool

	// Receive-buffer state (§3, §4.4). Touched only by the single reader
	// loop; never guarded by mu.
	hdrBuf        [headerLen]byte
	hdrGot        int
	messageLength uint32
	bodyBuf       []byte
	bodyGot       int
}

func newSession(monitorID uint32, cb Callback, transport transportConfig, username, password string, logger *slog.Logger) *Session {
	return &Session{
		monitorID: monitorID,
		callback:  cb,
		transport: transport,
		username:  username,
		password:  password,
		logger:    logger,
		state:     SessionFresh,
	}
}

// MonitorID returns the server-assigned monitor id this session subscribes to.
func (s *Session) MonitorID() uint32 { return s.monitorID }

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Conn returns the session's current socket and whether one is present.
func (s *Session) Conn() (net.Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.conn != nil
}

// Start opens the transport, performs the blocking handshake, and on
// success transitions the session to Active with a registered socket.
// Failure leaves the session in Fresh with no socket, per §4.2.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.state = SessionHandshaking
	s.mu.Unlock()

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, err := s.transport.dial(hctx)
	if err != nil {
		s.setFresh()
		return err
	}

	if err := s.handshake(hctx, conn); err != nil {
		conn.Close()
		s.setFresh()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.state = SessionActive
	s.mu.Unlock()
	s.resetReceiveState()

	s.logger.Info("push session active", "monitor_id", s.monitorID, "remote", conn.RemoteAddr())
	return nil
}

func (s *Session) setFresh() {
	s.mu.Lock()
	s.conn = nil
	s.state = SessionFresh
	s.mu.Unlock()
}

// handshake performs the synchronous ConnectionRequest/ConnectionResponse
// exchange described in §4.2: blocking send, blocking receive of exactly
// 10 bytes bounded by ctx's deadline, which Start has already set to no
// later than handshakeTimeout from now.
func (s *Session) handshake(ctx context.Context, conn net.Conn) error {
	req := EncodeConnectionRequest(ConnectionRequest{
		Username:  s.username,
		Password:  s.password,
		MonitorID: s.monitorID,
	})

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(handshakeTimeout)
	}
	conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("%w: sending connection request: %v", ErrTransport, err)
	}

	resp := make([]byte, 10)
	if _, err := io.ReadFull(conn, resp); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w: no connection response within %s", ErrHandshakeTimeout, handshakeTimeout)
		}
		return fmt.Errorf("%w: reading connection response: %v", ErrTransport, err)
	}

	var hdr [headerLen]byte
	copy(hdr[:], resp[:headerLen])
	msgType, bodyLen := DecodeHeader(hdr)
	if msgType != MessageConnectionResponse || bodyLen != 4 {
		return fmt.Errorf("%w: unexpected handshake reply type=%s bodyLen=%d", ErrProtocol, msgType, bodyLen)
	}

	cresp, err := DecodeConnectionResponse(resp[headerLen:10])
	if err != nil {
		return err
	}

	switch cresp.Status {
	case StatusOK:
		return nil
	case StatusBadRequest, StatusUnauthorized:
		return fmt.Errorf("%w: connection response status %d", ErrAuth, cresp.Status)
	default:
		return fmt.Errorf("%w: unexpected connection response status %d", ErrProtocol, cresp.Status)
	}
}

// Stop closes the transport if present, clears the socket reference, and
// resets receive state. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.state = SessionStopped
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.resetReceiveState()
}

// markFailed transitions the session to Failed after the reader detects a
// transport error. It does not close the socket itself: the reader's
// restart path calls Stop first and then markFailed, so a session that is
// reconnecting reads as Failed rather than Stopped.
func (s *Session) markFailed() {
	s.mu.Lock()
	s.state = SessionFailed
	s.mu.Unlock()
}

// resetReceiveState zeros the accumulation buffer and message_length
// counter, per §4.2. Invoked after a full frame is dispatched or after a
// recoverable frame-level error.
func (s *Session) resetReceiveState() {
	s.hdrGot = 0
	s.messageLength = 0
	s.bodyBuf = nil
	s.bodyGot = 0
}
