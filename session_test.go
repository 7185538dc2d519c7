// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package push

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"
)

// fakeServer accepts exactly one connection and hands it to handle.
func fakeServer(t *testing.T, handle func(conn net.Conn)) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handle(conn)
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func testTransport(t *testing.T, addr string) transportConfig {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return transportConfig{hostname: host, port: port}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Scenario 1 from §8: handshake success.
func TestSession_StartHandshakeSuccess(t *testing.T) {
	addr, stop := fakeServer(t, func(conn net.Conn) {
		defer conn.Close()
		header := make([]byte, headerLen)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		var hdr [headerLen]byte
		copy(hdr[:], header)
		_, bodyLen := DecodeHeader(hdr)
		body := make([]byte, bodyLen)
		io.ReadFull(conn, body)
		conn.Write(EncodeConnectionResponse(StatusOK))
	})
	defer stop()

	sess := newSession(9001, func([]byte) bool { return true }, testTransport(t, addr), "u", "p", discardLogger())
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.State() != SessionActive {
		t.Fatalf("state = %v, want Active", sess.State())
	}
	if _, ok := sess.Conn(); !ok {
		t.Fatal("expected a registered socket")
	}
}

// Scenario 2 from §8: handshake auth failure.
func TestSession_StartHandshakeAuthFailure(t *testing.T) {
	addr, stop := fakeServer(t, func(conn net.Conn) {
		defer conn.Close()
		header := make([]byte, headerLen)
		io.ReadFull(conn, header)
		var hdr [headerLen]byte
		copy(hdr[:], header)
		_, bodyLen := DecodeHeader(hdr)
		body := make([]byte, bodyLen)
		io.ReadFull(conn, body)
		conn.Write(EncodeConnectionResponse(StatusUnauthorized))
	})
	defer stop()

	sess := newSession(9001, func([]byte) bool { return true }, testTransport(t, addr), "u", "p", discardLogger())
	err := sess.Start(context.Background())
	if err == nil {
		t.Fatal("expected AuthError")
	}
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("got %v, want ErrAuth", err)
	}
	if _, ok := sess.Conn(); ok {
		t.Fatal("expected session socket to be nil after auth failure")
	}
	if sess.State() != SessionFresh {
		t.Fatalf("state = %v, want Fresh", sess.State())
	}
}

func TestSession_StartHandshakeTimeout(t *testing.T) {
	addr, stop := fakeServer(t, func(conn net.Conn) {
		defer conn.Close()
		// Never reply; the client must time out.
		time.Sleep(200 * time.Millisecond)
	})
	defer stop()

	sess := newSession(1, func([]byte) bool { return true }, testTransport(t, addr), "u", "p", discardLogger())

	// The context deadline is tighter than the package's fixed 60s
	// handshake timeout, since waiting out the real constant would make
	// this test impractically slow; Start bounds the handshake to
	// whichever of the two deadlines is sooner.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := sess.Start(ctx); err == nil {
		t.Fatal("expected an error")
	}
}
