// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package push

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"
)

// transportConfig carries everything needed to open one session socket.
// Plaintext and TLS variants are modeled as a single dial function rather
// than as an interface hierarchy: both produce a net.Conn, and every
// caller downstream only ever needs net.Conn's Read/Write/SetDeadline/
// Close capability.
type transportConfig struct {
	hostname string
	port     int
	secure   bool
	caCerts  string
}

func (c transportConfig) addr() string {
	return net.JoinHostPort(c.hostname, fmt.Sprintf("%d", c.port))
}

// dial opens the transport for one session incarnation: a TCP connect,
// followed by a TLS handshake when secure is set. ctx bounds both phases.
func (c transportConfig) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr())
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrTransport, c.addr(), err)
	}

	if !c.secure {
		return conn, nil
	}

	tlsConfig, err := c.tlsConfig()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: building tls config: %v", ErrTransport, err)
	}

	tlsConn := tls.Client(conn, tlsConfig)
	if deadline, ok := ctx.Deadline(); ok {
		tlsConn.SetDeadline(deadline)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: tls handshake with %s: %v", ErrTransport, c.addr(), err)
	}
	tlsConn.SetDeadline(time.Time{})

	return tlsConn, nil
}

// tlsConfig builds the *tls.Config for this transport's ca-certs
// selector: a file path verifies against that PEM bundle, NonprodCACerts
// disables verification, and the empty string uses the system trust
// store.
func (c transportConfig) tlsConfig() (*tls.Config, error) {
	if c.caCerts == "" {
		return &tls.Config{ServerName: c.hostname}, nil
	}
	if c.caCerts == NonprodCACerts {
		return &tls.Config{ServerName: c.hostname, InsecureSkipVerify: true}, nil //nolint:gosec // explicit opt-in sentinel
	}

	pem, err := os.ReadFile(c.caCerts)
	if err != nil {
		return nil, fmt.Errorf("reading ca-certs file %s: %w", c.caCerts, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates parsed from ca-certs file %s", c.caCerts)
	}
	return &tls.Config{ServerName: c.hostname, RootCAs: pool}, nil
}
