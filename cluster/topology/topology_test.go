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

package topology

import (
	"testing"

	"github.com/kvwire/kvwire/frame"
)

func triple(host string, port int64, id string) frame.Frame {
	return frame.NewArray([]frame.Frame{
		frame.NewBulk([]byte(host)),
		frame.NewInteger(port),
		frame.NewBulk([]byte(id)),
	})
}

func TestFromSlots(t *testing.T) {
	reply := frame.NewArray([]frame.Frame{
		frame.NewArray([]frame.Frame{
			frame.NewInteger(0),
			frame.NewInteger(8191),
			triple("10.0.0.1", 6379, "nodeA"),
			triple("10.0.0.2", 6379, "nodeA-replica"),
		}),
		frame.NewArray([]frame.Frame{
			frame.NewInteger(8192),
			frame.NewInteger(16383),
			triple("10.0.0.3", 6379, "nodeB"),
		}),
	})

	top, err := FromSlots(reply, 1)
	if err != nil {
		t.Fatalf("FromSlots: %v", err)
	}
	if !top.IsFullyCovered() {
		t.Fatal("expected full coverage over two adjacent ranges")
	}
	if top.NodeCount() != 3 {
		t.Fatalf("NodeCount() = %d, want 3", top.NodeCount())
	}
	if got := top.MasterFor(0); got != "nodeA" {
		t.Fatalf("MasterFor(0) = %q, want nodeA", got)
	}
	if got := top.MasterFor(16383); got != "nodeB" {
		t.Fatalf("MasterFor(16383) = %q, want nodeB", got)
	}
	if reps := top.ReplicasFor(0); len(reps) != 1 || reps[0] != "nodeA-replica" {
		t.Fatalf("ReplicasFor(0) = %v, want [nodeA-replica]", reps)
	}
	if top.Generation() != 1 {
		t.Fatalf("Generation() = %d, want 1", top.Generation())
	}
	nodeA, ok := top.Node("nodeA")
	if !ok {
		t.Fatal("Node(nodeA) missing")
	}
	if len(nodeA.Ranges) != 1 || nodeA.Ranges[0].Low != 0 || nodeA.Ranges[0].High != 8191 {
		t.Fatalf("Node(nodeA).Ranges = %v, want [0-8191]", nodeA.Ranges)
	}
}

func TestFromSlotsRejectsOverlap(t *testing.T) {
	reply := frame.NewArray([]frame.Frame{
		frame.NewArray([]frame.Frame{
			frame.NewInteger(0), frame.NewInteger(100), triple("h1", 1, "a"),
		}),
		frame.NewArray([]frame.Frame{
			frame.NewInteger(50), frame.NewInteger(200), triple("h2", 1, "b"),
		}),
	})
	if _, err := FromSlots(reply, 1); err == nil {
		t.Fatal("expected an error for overlapping slot ranges")
	}
}

func TestFromNodes(t *testing.T) {
	text := "" +
		"nodeA 10.0.0.1:6379@16379 master - 0 0 1 connected 0-8191\n" +
		"nodeB 10.0.0.2:6379@16379 master - 0 0 2 connected 8192-16383\n" +
		"nodeC 10.0.0.3:6379@16379 slave nodeA 0 0 1 connected\n"

	top, err := FromNodes(text, 7)
	if err != nil {
		t.Fatalf("FromNodes: %v", err)
	}
	if !top.IsFullyCovered() {
		t.Fatal("expected full coverage")
	}
	if got := top.MasterFor(4096); got != "nodeA" {
		t.Fatalf("MasterFor(4096) = %q, want nodeA", got)
	}
	reps := top.ReplicasFor(4096)
	if len(reps) != 1 || reps[0] != "nodeC" {
		t.Fatalf("ReplicasFor(4096) = %v, want [nodeC]", reps)
	}
	n, ok := top.Node("nodeA")
	if !ok || n.Addr != "10.0.0.1:6379" {
		t.Fatalf("Node(nodeA) = %+v, %v", n, ok)
	}
	if len(n.Ranges) != 1 || n.Ranges[0].Low != 0 || n.Ranges[0].High != 8191 {
		t.Fatalf("Node(nodeA).Ranges = %v, want [0-8191]", n.Ranges)
	}
	if top.Generation() != 7 {
		t.Fatalf("Generation() = %d, want 7", top.Generation())
	}
}

func TestFromNodesIgnoresMigrationMarkers(t *testing.T) {
	text := "nodeA 10.0.0.1:6379@16379 master - 0 0 1 connected 0-100 [105-<nodeB]\n"
	top, err := FromNodes(text, 1)
	if err != nil {
		t.Fatalf("FromNodes: %v", err)
	}
	if top.MasterFor(50) != "nodeA" {
		t.Fatal("expected slot 50 owned by nodeA")
	}
	if top.MasterFor(105) != "" {
		t.Fatal("a migration marker must not assign ownership")
	}
}

func TestFingerprintStableAcrossRebuilds(t *testing.T) {
	text := "nodeA 10.0.0.1:6379@16379 master - 0 0 1 connected 0-16383\n"
	a, err := FromNodes(text, 1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := FromNodes(text, 2)
	if err != nil {
		t.Fatal(err)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("identical slot assignment must fingerprint identically regardless of generation")
	}
}
