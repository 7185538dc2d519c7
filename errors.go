// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package push

import (
	"errors"

	"code.hybscloud.com/iox"
)

// Sentinel error kinds. Concrete errors returned by this package wrap one
// of these via fmt.Errorf("...: %w", base) so callers can classify with
// errors.Is.
var (
	// ErrTransport reports a connect/send/recv failure during handshake.
	ErrTransport = errors.New("push: transport error")

	// ErrHandshakeTimeout reports that no ConnectionResponse arrived within
	// the handshake deadline.
	ErrHandshakeTimeout = errors.New("push: handshake timed out")

	// ErrProtocol reports a malformed frame: wrong type, truncated body, or
	// an unexpected compression code.
	ErrProtocol = errors.New("push: protocol error")

	// ErrAuth reports a ConnectionResponse status of 400/403, or an HTTP
	// 401/403 from the monitor endpoints.
	ErrAuth = errors.New("push: authentication rejected")

	// ErrHTTP reports a non-2xx response from a monitor endpoint.
	ErrHTTP = errors.New("push: http error")

	// ErrClosed is returned by operations attempted after Client.StopAll.
	ErrClosed = errors.New("push: client closed")

	// ErrWouldBlock signals that a non-blocking read/write made no progress
	// because the underlying socket was not yet ready. Re-exported from iox
	// so the reader loop's readiness polling (see classifyReadErr in
	// session_recv.go) speaks the same
	// sentinel-error contract as the rest of the non-blocking I/O ecosystem.
	ErrWouldBlock = iox.ErrWouldBlock
)
