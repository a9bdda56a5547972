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
	"fmt"
	"strconv"
	"strings"

	"github.com/kvwire/kvwire/frame"
)

// FromSlots builds a Topology from the reply to CLUSTER SLOTS: an Array of
// [low, high, [master-host, master-port, master-id], [replica-host,
// replica-port, replica-id]...] entries, per spec.md §4.5.
func FromSlots(reply frame.Frame, generation uint64) (*Topology, error) {
	entries, ok := reply.Elems()
	if !ok {
		return nil, fmt.Errorf("topology: CLUSTER SLOTS reply is not an array")
	}
	nodes := make(map[NodeId]NodeInfo)
	ranges := make([]SlotRange, 0, len(entries))
	for i, entry := range entries {
		fields, ok := entry.Elems()
		if !ok || len(fields) < 3 {
			return nil, fmt.Errorf("topology: CLUSTER SLOTS entry %d malformed", i)
		}
		low, err := asInt(fields[0])
		if err != nil {
			return nil, fmt.Errorf("topology: entry %d low slot: %w", i, err)
		}
		high, err := asInt(fields[1])
		if err != nil {
			return nil, fmt.Errorf("topology: entry %d high slot: %w", i, err)
		}
		master, err := nodeFromTriple(fields[2], Master)
		if err != nil {
			return nil, fmt.Errorf("topology: entry %d master: %w", i, err)
		}
		nodes[master.ID] = merge(nodes[master.ID], master)

		var replicaIDs []NodeId
		for j := 3; j < len(fields); j++ {
			replica, err := nodeFromTriple(fields[j], Replica)
			if err != nil {
				return nil, fmt.Errorf("topology: entry %d replica %d: %w", i, j, err)
			}
			nodes[replica.ID] = merge(nodes[replica.ID], replica)
			replicaIDs = append(replicaIDs, replica.ID)
		}

		r := SlotRange{
			Low:      int(low),
			High:     int(high),
			Master:   master.ID,
			Replicas: replicaIDs,
		}
		ranges = append(ranges, r)
		info := nodes[master.ID]
		info.Ranges = append(info.Ranges, r)
		nodes[master.ID] = info
	}
	return build(ranges, nodes, generation)
}

func asInt(f frame.Frame) (int64, error) {
	if n, ok := f.Int(); ok {
		return n, nil
	}
	if b, ok := f.Bytes(); ok {
		return strconv.ParseInt(string(b), 10, 64)
	}
	return 0, fmt.Errorf("frame is not an integer or bulk-encoded integer")
}

func asString(f frame.Frame) (string, error) {
	if b, ok := f.Bytes(); ok {
		return string(b), nil
	}
	if s, ok := f.Text(); ok {
		return s, nil
	}
	return "", fmt.Errorf("frame is not a bulk or simple string")
}

func nodeFromTriple(f frame.Frame, role NodeFlag) (NodeInfo, error) {
	fields, ok := f.Elems()
	if !ok || len(fields) < 2 {
		return NodeInfo{}, fmt.Errorf("malformed node triple")
	}
	host, err := asString(fields[0])
	if err != nil {
		return NodeInfo{}, err
	}
	port, err := asInt(fields[1])
	if err != nil {
		return NodeInfo{}, err
	}
	var id NodeId
	if len(fields) >= 3 {
		idStr, err := asString(fields[2])
		if err != nil {
			return NodeInfo{}, err
		}
		id = NodeId(idStr)
	} else {
		id = NodeId(fmt.Sprintf("%s:%d", host, port))
	}
	return NodeInfo{
		ID:    id,
		Addr:  NodeAddress(fmt.Sprintf("%s:%d", host, port)),
		Flags: role,
	}, nil
}

func merge(existing NodeInfo, n NodeInfo) NodeInfo {
	existing.ID = n.ID
	existing.Addr = n.Addr
	existing.Flags |= n.Flags
	existing.Ranges = append(existing.Ranges, n.Ranges...)
	return existing
}

// FromNodes builds a Topology from the text reply to CLUSTER NODES: one
// line per node, per spec.md §4.5's grammar. In-migration slot-spec
// markers ("[slot-<id]", "[slot->id]") are skipped: they assign no
// ownership and are not recorded anywhere in the resulting Topology.
func FromNodes(text string, generation uint64) (*Topology, error) {
	nodes := make(map[NodeId]NodeInfo)
	var ranges []SlotRange
	primaryOf := make(map[NodeId]NodeId)
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 8 {
			return nil, fmt.Errorf("topology: CLUSTER NODES line has %d fields, want >= 8: %q", len(fields), line)
		}
		id := NodeId(fields[0])
		addr := parseNodeAddr(fields[1])
		var flags NodeFlag
		for _, f := range strings.Split(fields[2], ",") {
			switch f {
			case "master":
				flags |= Master
			case "slave", "replica":
				flags |= Replica
			case "fail", "fail?":
				flags |= Failing
			}
		}
		info := NodeInfo{ID: id, Addr: addr, Flags: flags}
		for _, spec := range fields[8:] {
			if strings.HasPrefix(spec, "[") {
				// in-migration marker; skipped, neither ownership nor
				// a node flag is recorded for it.
				continue
			}
			lo, hi, err := parseSlotSpec(spec)
			if err != nil {
				return nil, fmt.Errorf("topology: node %s: %w", id, err)
			}
			info.Ranges = append(info.Ranges, SlotRange{Low: lo, High: hi, Master: id})
		}
		nodes[id] = merge(nodes[id], info)
		if flags&Master != 0 {
			ranges = append(ranges, info.Ranges...)
		} else if primary := fields[3]; primary != "-" {
			primaryOf[id] = NodeId(primary)
		}
	}
	for i := range ranges {
		for replica, primary := range primaryOf {
			if primary == ranges[i].Master {
				ranges[i].Replicas = append(ranges[i].Replicas, replica)
			}
		}
	}
	return build(ranges, nodes, generation)
}

func parseNodeAddr(field string) NodeAddress {
	addr := field
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		addr = addr[:i]
	}
	return NodeAddress(addr)
}

func parseSlotSpec(spec string) (int, int, error) {
	if i := strings.IndexByte(spec, '-'); i > 0 {
		lo, err := strconv.Atoi(spec[:i])
		if err != nil {
			return 0, 0, fmt.Errorf("bad slot range %q: %w", spec, err)
		}
		hi, err := strconv.Atoi(spec[i+1:])
		if err != nil {
			return 0, 0, fmt.Errorf("bad slot range %q: %w", spec, err)
		}
		return lo, hi, nil
	}
	n, err := strconv.Atoi(spec)
	if err != nil {
		return 0, 0, fmt.Errorf("bad slot %q: %w", spec, err)
	}
	return n, n, nil
}
