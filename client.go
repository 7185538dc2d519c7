// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package push

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Client is the façade of §4.6: it creates and destroys Push sessions,
// owns the shared reader, writer, and callback pool, and delegates
// Monitor lifecycle management to the HTTP collaborator (monitor.go).
//
// The reader, writer, and callback workers are started once, lazily, on
// the first call to CreateSession, and run until StopAll.
type Client struct {
	opts   Options
	logger *slog.Logger
	http   *monitorClient

	mu       sync.Mutex
	bySocket map[net.Conn]*Session
	sessions []*Session

	writer *writer
	reader *reader
	pool   *callbackPool

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	eg        *errgroup.Group
	closed    atomic.Bool
}

// New constructs a Client from the given options. It does not dial
// anything; the reader, writer, and worker pool start lazily on the
// first CreateSession call.
func New(opts ...Option) *Client {
	o := newOptions(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:     o,
		logger:   o.Logger,
		http:     newMonitorClient(o),
		bySocket: make(map[net.Conn]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ensureWorkers starts the reader, writer, and callback pool exactly
// once, regardless of how many goroutines call CreateSession
// concurrently.
func (c *Client) ensureWorkers() {
	c.startOnce.Do(func() {
		eg := &errgroup.Group{}
		c.eg = eg

		c.writer = newWriter(c, c.logger)
		c.pool = newCallbackPool(c.opts.Workers, c.writer, c.logger)
		c.reader = newReader(c, c.pool, c.logger)

		eg.Go(func() error {
			c.writer.run(c.ctx)
			return nil
		})

		c.pool.run(c.ctx, eg)

		eg.Go(func() error {
			c.reader.run(c.ctx)
			return nil
		})
	})
}

// CreateSession constructs a plaintext or TLS session per the client's
// configuration, performs its handshake synchronously, registers it with
// the reader, and lazily starts the shared workers on first use.
func (c *Client) CreateSession(monitorID uint32, cb Callback) (*Session, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	c.ensureWorkers()

	transport := transportConfig{
		hostname: c.opts.Hostname,
		port:     c.opts.pushPort(),
		secure:   c.opts.Secure,
		caCerts:  c.opts.CACerts,
	}
	sess := newSession(monitorID, cb, transport, c.opts.Username, c.opts.Password, c.logger)

	if err := sess.Start(c.ctx); err != nil {
		return nil, err
	}

	conn, ok := sess.Conn()
	if !ok {
		return nil, fmt.Errorf("%w: session started without a registered socket", ErrTransport)
	}

	c.mu.Lock()
	c.bySocket[conn] = sess
	c.sessions = append(c.sessions, sess)
	c.mu.Unlock()

	c.logger.Info("push session created", "monitor_id", monitorID)
	return sess, nil
}

// allSessions returns a snapshot of every session ever created through
// this client, in creation order. The reader polls this snapshot each
// pass (§4.4); session identity survives restarts, so a session that is
// mid-reconnect simply has no current socket and is skipped until its
// restart gives it a new one.
func (c *Client) allSessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Session, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// addSession inserts sess under its new socket handle after a restart.
func (c *Client) addSession(conn net.Conn, sess *Session) {
	c.mu.Lock()
	c.bySocket[conn] = sess
	c.mu.Unlock()
}

// removeSession deletes the map entry for conn. Per Invariant 3, this
// must happen before a restart inserts the replacement handle.
func (c *Client) removeSession(conn net.Conn) {
	c.mu.Lock()
	delete(c.bySocket, conn)
	c.mu.Unlock()
}

// cleanDeadSessions removes socket-map entries whose session no longer
// owns that socket (§4.3): called by the writer when it finds a dead
// handle.
func (c *Client) cleanDeadSessions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for conn, sess := range c.bySocket {
		if cur, ok := sess.Conn(); !ok || cur != conn {
			delete(c.bySocket, conn)
		}
	}
}

// stopAllSessions stops every known session. Called by the reader loop
// once it observes the client is closed (§4.4 Shutdown).
func (c *Client) stopAllSessions() {
	for _, sess := range c.allSessions() {
		sess.Stop()
	}
}

// StopAll sets the client closed and waits for the reader, writer, and
// every callback worker to terminate. Idempotent.
func (c *Client) StopAll() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.cancel()
	if c.eg != nil {
		c.eg.Wait()
	}
}

// CreateMonitor posts a monitor descriptor to the HTTP endpoint and
// returns the server-assigned monitor id. See monitor.go.
func (c *Client) CreateMonitor(ctx context.Context, req MonitorRequest) (uint32, error) {
	return c.http.createMonitor(ctx, req)
}

// GetMonitor looks up an existing monitor id by topic list. See monitor.go.
func (c *Client) GetMonitor(ctx context.Context, topics []string) (uint32, bool, error) {
	return c.http.getMonitor(ctx, topics)
}

// DeleteMonitor deletes a monitor by id. See monitor.go.
func (c *Client) DeleteMonitor(ctx context.Context, monitorID uint32) error {
	return c.http.deleteMonitor(ctx, monitorID)
}
