// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package push

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestWriter_DeadSocketTriggersCleanup(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server := <-accepted
	server.Close()
	conn.Close() // closing our own end makes the next Write return net.ErrClosed

	// The session has already dropped the socket (as after Stop), while the
	// client's map still holds the stale entry for it.
	sess := newSession(1, func([]byte) bool { return true }, transportConfig{}, "u", "p", discardLogger())
	sess.state = SessionStopped

	client := &Client{bySocket: map[net.Conn]*Session{conn: sess}}
	w := newWriter(client, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.run(ctx)

	w.enqueue(conn, EncodePublishReceived(1))

	deadline := time.Now().Add(time.Second)
	for {
		client.mu.Lock()
		n := len(client.bySocket)
		client.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("writer never cleaned up the dead socket entry")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestIsDeadSocketErr(t *testing.T) {
	if !isDeadSocketErr(net.ErrClosed) {
		t.Fatal("net.ErrClosed should be classified as dead")
	}
}
