// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package push

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// reader is the single loop of §4.4 that multiplexes every registered
// session socket: it polls each one with a short read deadline, advances
// its frame-reassembly state machine, dispatches complete PublishMessage
// payloads to the callback pool, and schedules a session restart on
// transport failure.
type reader struct {
	client *Client
	pool   *callbackPool
	logger *slog.Logger
}

func newReader(client *Client, pool *callbackPool, logger *slog.Logger) *reader {
	return &reader{client: client, pool: pool, logger: logger}
}

// run polls every registered session once per pass until ctx is
// cancelled, at which point it stops every remaining session before
// returning (§4.4 Shutdown).
func (r *reader) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			r.client.stopAllSessions()
			return
		}

		sessions := r.client.allSessions()
		if len(sessions) == 0 {
			select {
			case <-ctx.Done():
				r.client.stopAllSessions()
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		for _, sess := range sessions {
			if ctx.Err() != nil {
				break
			}
			r.pollSession(ctx, sess)
		}
	}
}

// pollSession drives exactly one receiveOnce attempt for sess and reacts
// to the outcome. Any panic from application-triggered code paths is
// logged and swallowed so one misbehaving session cannot kill the loop
// (§4.4 "any other exception").
func (r *reader) pollSession(ctx context.Context, sess *Session) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("push reader recovered from panic", "monitor_id", sess.MonitorID(), "panic", rec)
		}
	}()

	conn, ok := sess.Conn()
	if !ok {
		return
	}

	outcome, pub, err := sess.receiveOnce(conn)
	switch outcome {
	case recvNoProgress, recvNeedMore, recvDiscarded:
		return
	case recvPublish:
		r.pool.enqueue(ctx, sess, pub.BlockID, pub.Payload)
	case recvPeerClosed:
		r.logger.Info("push session peer closed, restarting", "monitor_id", sess.MonitorID())
		r.restartSession(ctx, sess)
	case recvError:
		r.logger.Warn("push session read error, restarting", "monitor_id", sess.MonitorID(), "error", err)
		r.restartSession(ctx, sess)
	}
}

// restartSession implements §4.4's restart_session: remove the current
// socket-handle entry, stop the session, and re-establish it under a new
// handle. If the socket is already gone (a concurrent user-initiated
// Stop), no restart is performed.
//
// Unlike the single-threaded reactor this algorithm originates from, the
// actual reconnect (which can block for up to the 60s handshake timeout,
// retried with backoff) runs on its own goroutine rather than the shared
// reader loop, so one session's reconnect never stalls delivery to every
// other session. Invariant 1 ("exactly one reader loop observes session
// sockets") still holds: the restart goroutine only ever touches its own
// session's new socket, never a socket already registered with the reader.
func (r *reader) restartSession(ctx context.Context, sess *Session) {
	if !sess.beginRestart() {
		return
	}

	conn, ok := sess.Conn()
	if !ok {
		sess.endRestart()
		return
	}

	r.client.removeSession(conn)
	sess.Stop()
	sess.markFailed()

	go r.reconnect(ctx, sess)
}

func (r *reader) reconnect(ctx context.Context, sess *Session) {
	defer sess.endRestart()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0 // retry until ctx is cancelled

	err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err := sess.Start(ctx); err != nil {
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		r.logger.Error("push session restart abandoned", "monitor_id", sess.MonitorID(), "error", err)
		return
	}

	conn, ok := sess.Conn()
	if !ok {
		return
	}
	r.client.addSession(conn, sess)
	r.logger.Info("push session restarted", "monitor_id", sess.MonitorID())
}

// beginRestart and endRestart guard against launching two concurrent
// restart attempts for the same session.
func (s *Session) beginRestart() bool { return s.restarting.CompareAndSwap(false, true) }
func (s *Session) endRestart()        { s.restarting.Store(false) }
