// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package push

import (
	"log/slog"
	"time"
)

// Ports the Push protocol listens on, keyed by transport mode.
const (
	PortPlaintext = 3200
	PortTLS       = 3201
)

// NonprodCACerts is the ca-certs sentinel meaning "use TLS, skip certificate
// verification". It must never be used outside of development.
const NonprodCACerts = "nonprod"

// handshakeTimeout is the fixed deadline for the blocking handshake
// recv specified in §4.2.
const handshakeTimeout = 60 * time.Second

// pollInterval is the per-socket read deadline the reader loop uses to
// emulate readiness multiplexing, and its idle wait when no session is
// registered (§4.4).
const pollInterval = 100 * time.Millisecond

// Options configures a Client. Construct via New with one or more Option
// values; zero-value fields fall back to the defaults documented on each
// With function.
type Options struct {
	Username string
	Password string
	Hostname string
	Secure   bool
	CACerts  string
	Workers  int
	Logger   *slog.Logger

	httpTimeout time.Duration
}

var defaultOptions = Options{
	Workers:     1,
	httpTimeout: 30 * time.Second,
}

// Option mutates an Options value. Options compose left-to-right: later
// options override fields set by earlier ones.
type Option func(*Options)

// WithCredentials sets the username/password used for both the HTTP
// monitor surface (Basic auth) and the Push ConnectionRequest handshake.
func WithCredentials(username, password string) Option {
	return func(o *Options) {
		o.Username = username
		o.Password = password
	}
}

// WithHostname sets the server host used for both HTTP and Push
// connections.
func WithHostname(hostname string) Option {
	return func(o *Options) { o.Hostname = hostname }
}

// WithSecure toggles HTTPS + TLS push (port 3201) vs. HTTP + plaintext
// push (port 3200).
func WithSecure(secure bool) Option {
	return func(o *Options) { o.Secure = secure }
}

// WithCACerts sets the trust-store selector for TLS push sessions: a file
// path enables verification against that PEM bundle, NonprodCACerts
// disables verification while keeping encryption, and leaving this unset
// selects the Go runtime's system trust store.
func WithCACerts(caCerts string) Option {
	return func(o *Options) { o.CACerts = caCerts }
}

// WithWorkers sets the callback worker pool size. Must be positive;
// defaults to 1.
func WithWorkers(workers int) Option {
	return func(o *Options) { o.Workers = workers }
}

// WithLogger sets the structured logger used throughout the client.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithHTTPTimeout overrides the request timeout used for monitor HTTP
// operations. Defaults to 30s.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o *Options) { o.httpTimeout = d }
}

func newOptions(opts ...Option) Options {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.httpTimeout <= 0 {
		o.httpTimeout = defaultOptions.httpTimeout
	}
	return o
}

func (o Options) pushPort() int {
	if o.Secure {
		return PortTLS
	}
	return PortPlaintext
}
