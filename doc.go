// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package push is a client library for a cloud event-delivery service.
//
// A subscriber registers a Monitor (a durable server-side resource
// describing a topic filter and delivery options) through the Monitor
// HTTP surface, then opens a long-lived Session over which the server
// streams matching events as framed binary messages. Every delivered
// event must be acknowledged; a user-supplied callback consumes payloads.
//
// The package owns the hard part of this protocol: a length-prefixed
// binary frame codec over TCP/TLS, a single reader that multiplexes many
// session sockets, an asynchronous writer, a bounded callback worker
// pool, and transparent session reconnection on transport failure.
package push
