// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package push

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
)

// writeJob is one (socket, bytes) pair queued for the writer loop.
type writeJob struct {
	conn net.Conn
	data []byte
}

// writer is the single-producer-single-consumer-style outbound
// serializer of §4.3: it drains an unbounded queue of (socket, bytes)
// pairs and writes them, one at a time, to the addressed socket. The
// queue is a growable slice guarded by a sync.Cond rather than a
// buffered channel: a session whose peer stops reading can stall the
// in-flight Write for an arbitrary amount of time, and a bounded channel
// would let that one stuck socket back up acknowledgements for every
// other session until callers blocked on enqueue — exactly the
// cross-session stall the multiplexer is built to avoid (§5). Writes are
// best-effort: a send failure for an acknowledgement is not retried
// here, because the reader will detect the closed socket on its own and
// restart the session, after which the server retransmits the block.
type writer struct {
	client *Client
	logger *slog.Logger

	cond   *sync.Cond
	queue  []writeJob
	closed bool
}

func newWriter(client *Client, logger *slog.Logger) *writer {
	return &writer{
		client: client,
		logger: logger,
		cond:   sync.NewCond(new(sync.Mutex)),
	}
}

// enqueue posts a frame to be written to conn. Never blocks: it appends
// to the in-memory queue and wakes the writer loop.
func (w *writer) enqueue(conn net.Conn, data []byte) {
	w.cond.L.Lock()
	w.queue = append(w.queue, writeJob{conn: conn, data: data})
	w.cond.L.Unlock()
	w.cond.Signal()
}

// run drains the writer queue until ctx is cancelled (Client.StopAll).
func (w *writer) run(ctx context.Context) {
	// Wake the waiting consumer once ctx is cancelled; sync.Cond has no
	// native way to wait on a context.
	stop := context.AfterFunc(ctx, func() {
		w.cond.L.Lock()
		w.closed = true
		w.cond.L.Unlock()
		w.cond.Broadcast()
	})
	defer stop()

	for {
		w.cond.L.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 && w.closed {
			w.cond.L.Unlock()
			return
		}
		job := w.queue[0]
		w.queue = w.queue[1:]
		w.cond.L.Unlock()

		w.writeOne(job)
	}
}

func (w *writer) writeOne(job writeJob) {
	if job.conn == nil {
		return
	}
	if _, err := job.conn.Write(job.data); err != nil {
		if isDeadSocketErr(err) {
			w.logger.Warn("writer found dead socket, cleaning sessions", "error", err)
			w.client.cleanDeadSessions()
			return
		}
		w.logger.Warn("dropping write after transient error", "error", err)
	}
}

// isDeadSocketErr reports whether err indicates the socket handle is no
// longer valid (closed or otherwise unusable), as opposed to a transient
// write failure.
func isDeadSocketErr(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && !netErr.Timeout() {
		return true
	}
	return false
}
