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
	"context"

	"github.com/kvwire/kvwire/cluster/slot"
	"github.com/kvwire/kvwire/frame"
)

// Execute runs an arbitrary request against the node owning slot,
// absorbing redirects and transient I/O failures per the RedirectEngine
// (spec.md §4.7). idempotent controls whether a transport-level failure
// is retried at all (spec.md §9's Open Question; see DESIGN.md).
func (c *Client) Execute(ctx context.Context, req frame.Frame, targetSlot int, idempotent bool) (frame.Frame, error) {
	return c.engine.Execute(ctx, req, targetSlot, idempotent)
}

// Get issues GET key. Reads are treated as idempotent.
func (c *Client) Get(ctx context.Context, key string) (frame.Frame, error) {
	return c.Execute(ctx, cmdFrame("GET", key), slot.Of(key), true)
}

// Set issues SET key value. Writes are not retried by default, per
// spec.md §9's Open Question decision.
func (c *Client) Set(ctx context.Context, key string, value []byte) (frame.Frame, error) {
	req := frame.NewArray([]frame.Frame{
		frame.NewBulk([]byte("SET")),
		frame.NewBulk([]byte(key)),
		frame.NewBulk(value),
	})
	return c.Execute(ctx, req, slot.Of(key), false)
}

// Del issues DEL against one or more keys sharing a slot. Not retried on
// I/O failure: a DEL that partially applied before a dropped connection
// must not be blindly repeated.
func (c *Client) Del(ctx context.Context, keys ...string) (frame.Frame, error) {
	s, err := validateSameSlot(keys)
	if err != nil {
		return frame.Frame{}, err
	}
	args := append([]string{"DEL"}, keys...)
	return c.Execute(ctx, cmdFrame(args...), s, false)
}

// Exists issues EXISTS against one or more keys sharing a slot. Reads are
// treated as idempotent.
func (c *Client) Exists(ctx context.Context, keys ...string) (frame.Frame, error) {
	s, err := validateSameSlot(keys)
	if err != nil {
		return frame.Frame{}, err
	}
	args := append([]string{"EXISTS"}, keys...)
	return c.Execute(ctx, cmdFrame(args...), s, true)
}

// ValidateSameSlot exposes validateSameSlot for callers building their
// own multi-key commands, per spec.md §4.8's validate_same_slot(keys).
func ValidateSameSlot(keys []string) (int, error) {
	return validateSameSlot(keys)
}
