// Copyright (C) 2024 kvwire contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package transport provides the duplex byte stream the rest of the
// library runs the server protocol over. It is agnostic to the protocol
// itself: a Transport is just a split-half, deadline-aware byte pipe, so a
// MultiplexedConnection's reader and writer can progress independently.
package transport

import (
	"context"
	"io"
	"net"
	"time"
)

// Transport is a duplex byte stream with independently usable read and
// write halves, so a reader goroutine and a writer goroutine never need to
// take a shared lock to make progress.
type Transport interface {
	// ReadHalf returns the reader used to consume bytes from the peer.
	ReadHalf() io.Reader
	// WriteHalf returns the writer used to send bytes to the peer.
	WriteHalf() io.Writer

	// SetReadDeadline bounds the next read. A zero time disables the
	// deadline.
	SetReadDeadline(t time.Time) error
	// SetWriteDeadline bounds the next write. A zero time disables the
	// deadline.
	SetWriteDeadline(t time.Time) error

	// CloseWrite half-closes the write side, signaling end-of-stream to
	// the peer while still allowing reads to drain any in-flight replies.
	CloseWrite() error
	// Close closes both halves and releases any underlying resources.
	Close() error
}

// Dialer opens Transports to a given address. Its fields are the
// connect-time knobs spec.md §6 names: a connect timeout and an optional
// TLS configuration, which is treated as an opaque stream wrapper (this
// package never constructs certificates or validates trust itself).
type Dialer struct {
	// ConnectTimeout bounds Transport establishment. Zero means no
	// timeout beyond ctx's own deadline, if any.
	ConnectTimeout time.Duration

	// TLSWrap, if non-nil, wraps a freshly dialed net.Conn into a TLS
	// connection. Callers supply this instead of the library constructing
	// *tls.Config itself, keeping TLS pluggable per spec.md §1.
	TLSWrap func(net.Conn) (net.Conn, error)
}

// Dial opens a Transport to addr ("host:port"). The provided context
// bounds the dial; d.ConnectTimeout additionally bounds it if set.
func (d Dialer) Dial(ctx context.Context, addr string) (Transport, error) {
	if d.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.ConnectTimeout)
		defer cancel()
	}
	nd := net.Dialer{Control: controlTCPNoDelay}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &Error{Op: "dial", Addr: addr, Err: err}
	}
	if d.TLSWrap != nil {
		wrapped, err := d.TLSWrap(conn)
		if err != nil {
			conn.Close()
			return nil, &Error{Op: "tls handshake", Addr: addr, Err: err}
		}
		conn = wrapped
	}
	return &TCP{conn: conn}, nil
}
