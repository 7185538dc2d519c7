// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package push

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// callbackJob is one delivered block queued for a worker: the
// originating session (for its callback and current socket), the block
// id, and the already-inflated payload.
type callbackJob struct {
	session *Session
	blockID uint16
	payload []byte
}

// callbackPool is the bounded queue + fixed worker set of §4.5. Workers
// invoke the session's user callback and, on success, enqueue a
// PublishMessageReceived acknowledgement onto the writer. The queue's
// capacity equals the worker count: when every worker is busy, the
// reader's enqueue blocks, which is the intended back-pressure mechanism
// (it stops the reader from draining sockets, which lets TCP flow
// control propagate to the server).
type callbackPool struct {
	jobs    chan callbackJob
	writer  *writer
	workers int
	logger  *slog.Logger
}

func newCallbackPool(workers int, w *writer, logger *slog.Logger) *callbackPool {
	return &callbackPool{
		jobs:    make(chan callbackJob, workers),
		writer:  w,
		workers: workers,
		logger:  logger,
	}
}

// run starts the fixed worker set on eg. Each worker exits when ctx is
// cancelled; eg.Wait blocks until every worker has returned.
func (p *callbackPool) run(ctx context.Context, eg *errgroup.Group) {
	for i := 0; i < p.workers; i++ {
		eg.Go(func() error {
			p.worker(ctx)
			return nil
		})
	}
}

// enqueue posts a delivered block for processing, blocking until a
// worker slot frees up or ctx is cancelled.
func (p *callbackPool) enqueue(ctx context.Context, session *Session, blockID uint16, payload []byte) {
	select {
	case p.jobs <- callbackJob{session: session, blockID: blockID, payload: payload}:
	case <-ctx.Done():
	}
}

func (p *callbackPool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			p.invoke(j)
		}
	}
}

func (p *callbackPool) invoke(j callbackJob) {
	ok := p.safeCallback(j)
	if !ok {
		return
	}
	conn, has := j.session.Conn()
	if !has {
		// The session was restarted or stopped between delivery and
		// acknowledgement; the new incarnation's handshake owns a fresh
		// block-id space and the server will retransmit this block.
		return
	}
	p.writer.enqueue(conn, EncodePublishReceived(j.blockID))
}

// safeCallback invokes the session's user callback, isolating the pool
// from a panicking or otherwise misbehaving callback. A panic is treated
// the same as a false return: logged, no acknowledgement sent.
func (p *callbackPool) safeCallback(j callbackJob) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("push callback panicked", "monitor_id", j.session.MonitorID(), "block_id", j.blockID, "panic", r)
			ok = false
		}
	}()
	return j.session.callback(j.payload)
}
