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

package transport

import (
	"io"
	"net"
	"time"
)

// TCP is the default Transport, wrapping a net.Conn (plain TCP or, when
// dialed with a TLSWrap, a *tls.Conn). TCP does not split its read and
// write halves into separate underlying file descriptors — net.Conn
// already permits concurrent, independent Read and Write calls from
// different goroutines — but it exposes them as distinct values so
// callers (and the race detector) see the same contract a genuinely
// split-half transport would offer.
type TCP struct {
	conn net.Conn
}

// NewTCP wraps an already-established net.Conn as a Transport. Most
// callers should use Dialer.Dial instead; NewTCP exists for tests and for
// callers that manage their own net.Listener-accepted connections.
func NewTCP(conn net.Conn) *TCP {
	return &TCP{conn: conn}
}

func (t *TCP) ReadHalf() io.Reader  { return readHalf{t.conn} }
func (t *TCP) WriteHalf() io.Writer { return writeHalf{t.conn} }

func (t *TCP) SetReadDeadline(d time.Time) error  { return t.conn.SetReadDeadline(d) }
func (t *TCP) SetWriteDeadline(d time.Time) error { return t.conn.SetWriteDeadline(d) }

// CloseWrite half-closes the write side if the underlying net.Conn
// supports it (plain *net.TCPConn and *tls.Conn both do); otherwise it
// falls back to a full Close.
func (t *TCP) CloseWrite() error {
	type closeWriter interface {
		CloseWrite() error
	}
	if cw, ok := t.conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return t.conn.Close()
}

func (t *TCP) Close() error { return t.conn.Close() }

// readHalf and writeHalf adapt net.Conn to the narrower io.Reader/io.Writer
// the Transport interface exposes, so callers cannot accidentally call
// Close or SetDeadline through the wrong half.
type readHalf struct{ net.Conn }
type writeHalf struct{ net.Conn }

// Error reports a Transport-level failure: dial, handshake, read, or
// write. Op and Addr identify where it happened; Err is the underlying
// cause and is exposed via Unwrap so callers can match on net.Error with
// errors.As.
type Error struct {
	Op   string
	Addr string
	Err  error
}

func (e *Error) Error() string {
	if e.Addr == "" {
		return "transport: " + e.Op + ": " + e.Err.Error()
	}
	return "transport: " + e.Op + " " + e.Addr + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the underlying error was a timeout, mirroring
// net.Error so callers can distinguish retryable deadline exceedances
// from hard failures without unwrapping manually.
func (e *Error) Timeout() bool {
	ne, ok := e.Err.(net.Error)
	return ok && ne.Timeout()
}
