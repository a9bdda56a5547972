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

// Package conn multiplexes many concurrent callers over a single
// transport.Transport, preserving first-in-first-out correspondence
// between requests and replies.
package conn

import (
	"github.com/google/uuid"
	"github.com/kvwire/kvwire/frame"
)

// Request pairs a Frame to write with the single-use channel its reply
// will be delivered on. Build one with NewRequest and pass it to
// MultiplexedConnection.Submit.
type Request struct {
	// ID traces this request through log lines; it plays no role on the
	// wire. Grounded on the teacher's queryID := uuid.New().String()
	// correlation IDs in cmd/snellerd/handler_query.go.
	ID uuid.UUID

	// Frame is the message to write.
	Frame frame.Frame

	// Idempotent marks whether this request is safe to retry after a
	// transport-level I/O failure without risking a double apply. See
	// spec.md §9's Open Question: the reference implementation retries
	// unconditionally; this library only retries when the caller has
	// marked the request safe to repeat.
	Idempotent bool

	reply chan Reply
}

// Reply is the single value ever sent on a Request's reply channel: either
// a decoded Frame or a terminal error.
type Reply struct {
	Frame frame.Frame
	Err   error
}

// NewRequest builds a Request ready to Submit. idempotent should be true
// only if replaying f after a partial failure cannot corrupt state.
func NewRequest(f frame.Frame, idempotent bool) *Request {
	return &Request{
		ID:         uuid.New(),
		Frame:      f,
		Idempotent: idempotent,
		reply:      make(chan Reply, 1),
	}
}
