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

// Package topology represents a snapshot of slot-to-node assignment
// discovered from a cluster, per spec.md §4.5. A Topology is immutable
// once built; refreshing publishes a new Topology rather than mutating
// the old one, so readers never observe a torn hybrid (spec.md §5).
package topology

import (
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/kvwire/kvwire/cluster/slot"
)

// NodeId is a stable identifier string assigned by the server cluster.
type NodeId string

// NodeAddress is a host:port pair.
type NodeAddress string

// NodeFlag classifies a node's role and health, per spec.md §3.
type NodeFlag int

const (
	Master NodeFlag = 1 << iota
	Replica
	Failing
)

// NodeInfo describes one cluster member.
type NodeInfo struct {
	ID     NodeId
	Addr   NodeAddress
	Flags  NodeFlag
	Ranges []SlotRange
}

// SlotRange is a contiguous, disjoint span of slots owned by one master
// and replicated by zero or more replicas.
type SlotRange struct {
	Low, High int
	Master    NodeId
	Replicas  []NodeId
}

func (r SlotRange) contains(s int) bool { return s >= r.Low && s <= r.High }

// Topology is an immutable snapshot of slot ownership. Build a new one
// with FromSlots or FromNodes; Refresh-style callers swap the published
// pointer rather than mutating a live Topology.
type Topology struct {
	nodes      map[NodeId]NodeInfo
	ranges     []SlotRange
	slotToNode [slot.Count]NodeId // "" means unassigned
	generation uint64
}

// Generation reports the monotonic counter a refresh should increment,
// letting observers detect that the published Topology changed without
// comparing the whole structure.
func (t *Topology) Generation() uint64 { return t.generation }

// MasterFor returns the master NodeId owning s, or "" if s is unassigned.
func (t *Topology) MasterFor(s int) NodeId {
	if s < 0 || s >= slot.Count {
		return ""
	}
	return t.slotToNode[s]
}

// ReplicasFor returns the replica NodeIds for the range owning s.
func (t *Topology) ReplicasFor(s int) []NodeId {
	for _, r := range t.ranges {
		if r.contains(s) {
			return r.Replicas
		}
	}
	return nil
}

// Node looks up metadata for id.
func (t *Topology) Node(id NodeId) (NodeInfo, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// IsFullyCovered reports whether all 16384 slots are assigned to a master.
func (t *Topology) IsFullyCovered() bool {
	for _, id := range t.slotToNode {
		if id == "" {
			return false
		}
	}
	return true
}

// NodeCount reports the number of distinct nodes known to this Topology.
func (t *Topology) NodeCount() int { return len(t.nodes) }

// NodeIDs returns every known node id, in an arbitrary but stable-per-call
// order (sorted), using golang.org/x/exp/maps and golang.org/x/exp/slices
// the way the teacher's plan/vm packages do before Go 1.21 made the
// generic forms builtin.
func (t *Topology) NodeIDs() []NodeId {
	ids := maps.Keys(t.nodes)
	slices.Sort(ids)
	return ids
}

// Ranges returns the disjoint slot ranges making up this Topology, sorted
// by Low.
func (t *Topology) Ranges() []SlotRange {
	out := slices.Clone(t.ranges)
	sort.Slice(out, func(i, j int) bool { return out[i].Low < out[j].Low })
	return out
}

// Fingerprint returns a content digest of the slot-range assignment, used
// to detect whether a refresh actually changed anything before logging or
// acting on it — grounded in the teacher's ion/blockfmt index checksums,
// which use the same golang.org/x/crypto/blake2b for cheap content
// digests over structured data (see DESIGN.md).
func (t *Topology) Fingerprint() [32]byte {
	h, _ := blake2b.New256(nil)
	for _, r := range t.Ranges() {
		fmt.Fprintf(h, "%d-%d:%s:%v\n", r.Low, r.High, r.Master, r.Replicas)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func build(ranges []SlotRange, nodes map[NodeId]NodeInfo, generation uint64) (*Topology, error) {
	t := &Topology{
		nodes:      nodes,
		ranges:     ranges,
		generation: generation,
	}
	for _, r := range ranges {
		if r.Low < 0 || r.High >= slot.Count || r.Low > r.High {
			return nil, fmt.Errorf("topology: invalid slot range [%d,%d]", r.Low, r.High)
		}
		for s := r.Low; s <= r.High; s++ {
			if existing := t.slotToNode[s]; existing != "" && existing != r.Master {
				return nil, fmt.Errorf("topology: slot %d claimed by both %s and %s", s, existing, r.Master)
			}
			t.slotToNode[s] = r.Master
		}
	}
	return t, nil
}
