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

package redirect

import (
	"errors"
	"fmt"

	"github.com/kvwire/kvwire/cluster/topology"
)

// ErrClusterDown is returned when no master owns the target slot, even
// after a Topology refresh, or the server itself reports CLUSTERDOWN.
var ErrClusterDown = errors.New("redirect: cluster is down")

// MovedError reports the slot/address the server named in its last MOVED
// reply. Per spec.md §7 it is surfaced to the caller only when the
// RedirectEngine gives up following further redirects.
type MovedError struct {
	Slot int
	Addr topology.NodeAddress
}

func (e *MovedError) Error() string {
	return fmt.Sprintf("redirect: MOVED %d %s (redirect budget exhausted)", e.Slot, e.Addr)
}

// AskError is the ASK analog of MovedError.
type AskError struct {
	Slot int
	Addr topology.NodeAddress
}

func (e *AskError) Error() string {
	return fmt.Sprintf("redirect: ASK %d %s (redirect budget exhausted)", e.Slot, e.Addr)
}

// TooManyRedirectsError is returned once MAX_REDIRECTS hops have been
// followed for a single request without a normal reply. Last, if
// non-nil, is the MovedError or AskError describing the final hop.
type TooManyRedirectsError struct {
	Attempts int
	Last     error
}

func (e *TooManyRedirectsError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("redirect: too many redirects (%d): %s", e.Attempts, e.Last)
	}
	return fmt.Sprintf("redirect: too many redirects (%d)", e.Attempts)
}

func (e *TooManyRedirectsError) Unwrap() error { return e.Last }
