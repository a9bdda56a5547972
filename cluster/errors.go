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

package cluster

import (
	"errors"
	"fmt"
)

// ErrClusterUnreachable is returned by Connect when every seed address
// failed to yield a usable Topology.
var ErrClusterUnreachable = errors.New("cluster: unreachable, all seeds failed")

// CrossSlotError is returned by validateSameSlot when a multi-key
// operation's keys do not all hash to the same slot, per spec.md §4.8.
type CrossSlotError struct {
	Keys []string
}

func (e *CrossSlotError) Error() string {
	return fmt.Sprintf("cluster: keys %v do not share a slot (CROSSSLOT)", e.Keys)
}
