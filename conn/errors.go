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

package conn

import "errors"

// ErrConnectionClosed is delivered to every still-pending reply channel
// when the reader observes end-of-stream after a graceful shutdown, or to
// a caller whose Submit raced a shutdown already in progress.
var ErrConnectionClosed = errors.New("conn: connection closed")

// ErrSubmit is returned by Submit when the request channel is closed
// before the request reached the writer — a caller that lost the race
// against Close/Shutdown.
var ErrSubmit = errors.New("conn: submission rejected, connection shutting down")

// TransportError wraps the underlying I/O failure that ended both the
// reader and writer tasks. Every entry still in the pending FIFO at the
// time of failure is completed with a TransportError carrying the same
// cause.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "conn: transport failure: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }
