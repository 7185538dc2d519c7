// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package push

import (
	"errors"
	"io"
	"net"
	"time"
)

// recvOutcome classifies the result of one receiveOnce attempt so the
// reader loop (reader.go) knows whether to move to the next socket, keep
// accumulating, dispatch a payload, or restart the session.
type recvOutcome int

const (
	// recvNoProgress means the socket was not ready within pollInterval;
	// the reader should move on to the next registered session.
	recvNoProgress recvOutcome = iota
	// recvNeedMore means bytes were read but the current header or body
	// is still incomplete; state is kept for the next poll round.
	recvNeedMore
	// recvDiscarded means a complete header for a non-Publish frame type
	// was read; the frame is dropped and receive state was reset.
	recvDiscarded
	// recvPublish means a complete PublishMessage was decoded (and
	// inflated, if compressed); receive state was reset.
	recvPublish
	// recvPeerClosed means the transport reported a clean close
	// mid-stream; the session should be scheduled for restart.
	recvPeerClosed
	// recvError means an unrecoverable transport error occurred reading
	// this socket; the session should be scheduled for restart.
	recvError
)

// receiveOnce performs exactly one non-blocking-style read attempt on
// conn and advances the session's header/body reassembly state machine
// (§4.4). It imposes a short read deadline to emulate readiness
// multiplexing on top of Go's deadline-based net.Conn, mirroring the
// ErrWouldBlock/ErrMore control-flow contract the frame-forwarding layer
// in this package's lineage uses for non-blocking I/O.
func (s *Session) receiveOnce(conn net.Conn) (recvOutcome, Publish, error) {
	conn.SetReadDeadline(time.Now().Add(pollInterval))

	if s.messageLength == 0 {
		return s.receiveHeader(conn)
	}
	return s.receiveBody(conn)
}

func (s *Session) receiveHeader(conn net.Conn) (recvOutcome, Publish, error) {
	n, err := conn.Read(s.hdrBuf[s.hdrGot:headerLen])
	if n > 0 {
		s.hdrGot += n
	}
	if err != nil {
		return classifyReadErr(n, err)
	}
	if s.hdrGot < headerLen {
		return recvNeedMore, Publish{}, nil
	}

	msgType, bodyLen := DecodeHeader(s.hdrBuf)
	if msgType != MessagePublish {
		s.logger.Warn("discarding non-publish frame on push session", "monitor_id", s.monitorID, "type", msgType)
		s.resetReceiveState()
		return recvDiscarded, Publish{}, nil
	}

	s.messageLength = bodyLen
	s.bodyBuf = make([]byte, bodyLen)
	s.bodyGot = 0

	if bodyLen == 0 {
		return s.dispatchBody()
	}
	return recvNeedMore, Publish{}, nil
}

func (s *Session) receiveBody(conn net.Conn) (recvOutcome, Publish, error) {
	n, err := conn.Read(s.bodyBuf[s.bodyGot:])
	if n > 0 {
		s.bodyGot += n
	}
	if err != nil {
		return classifyReadErr(n, err)
	}
	if s.bodyGot < len(s.bodyBuf) {
		return recvNeedMore, Publish{}, nil
	}
	return s.dispatchBody()
}

func (s *Session) dispatchBody() (recvOutcome, Publish, error) {
	body := s.bodyBuf
	s.resetReceiveState()

	pub, err := DecodePublish(body)
	if err != nil {
		s.logger.Warn("dropping malformed publish frame", "monitor_id", s.monitorID, "error", err)
		return recvDiscarded, Publish{}, nil
	}
	return recvPublish, pub, nil
}

// classifyReadErr turns a net.Conn.Read error into a recvOutcome. A
// deadline-exceeded error with no bytes read means the socket was not
// ready, reported as ErrWouldBlock per this package's non-blocking I/O
// contract; a clean EOF with no bytes read means the peer closed the
// connection; anything else is a transport failure.
func classifyReadErr(n int, err error) (recvOutcome, Publish, error) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return recvNoProgress, Publish{}, ErrWouldBlock
	}
	if errors.Is(err, io.EOF) {
		if n == 0 {
			return recvPeerClosed, Publish{}, nil
		}
		// Partial data followed immediately by EOF: the message can never
		// complete. Treat identically to a peer close.
		return recvPeerClosed, Publish{}, nil
	}
	return recvError, Publish{}, err
}
