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
	"sync"
	"time"
)

// stormTracker throttles Topology refreshes during a mass MOVED event,
// per spec.md §4.7. It holds a sliding window of MOVED timestamps; once
// more than threshold are observed within window, the caller should
// perform one refresh and the tracker enters a cooldown during which
// further MOVED errors do not trigger another. The window is a plain
// slice of timestamps rather than a ring buffer with a fixed capacity,
// since the per-client MOVED rate this guards against is bounded by the
// number of concurrent callers, not an unbounded stream.
type stormTracker struct {
	mu            sync.Mutex
	seen          []time.Time
	cooldownUntil time.Time
}

// observe records a MOVED event at now and reports whether the engine
// should perform a full Topology refresh in response.
func (s *stormTracker) observe(now time.Time, threshold int, window, cooldown time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	kept := s.seen[:0]
	for _, t := range s.seen {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.seen = append(kept, now)

	if now.Before(s.cooldownUntil) {
		return false
	}
	if len(s.seen) > threshold {
		s.cooldownUntil = now.Add(cooldown)
		s.seen = nil
		return true
	}
	return false
}

// reset clears the window after a successful refresh, per spec.md §4.7:
// "The tracker resets after a successful refresh."
func (s *stormTracker) reset() {
	s.mu.Lock()
	s.seen = nil
	s.mu.Unlock()
}
