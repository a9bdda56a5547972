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

// kvwire-topology resolves the live cluster topology from a seed address
// and prints it as JSON, the same "resolve peers, print JSON" shape as
// the teacher's cmd/k8s-peers (DNS-based peer discovery) — here the
// discovery mechanism is CLUSTER SLOTS/CLUSTER NODES against a seed
// instead of a k8s headless-service DNS lookup.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kvwire/kvwire/cluster"
	"github.com/kvwire/kvwire/cluster/clusterurl"
	"github.com/kvwire/kvwire/cluster/config"
	"github.com/kvwire/kvwire/cluster/topology"
)

var (
	seed    string
	timeout time.Duration
)

func init() {
	flag.StringVar(&seed, "seed", "", "cluster seed address, host:port")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "discovery timeout")
}

type nodeJSON struct {
	ID       string   `json:"id"`
	Addr     string   `json:"addr"`
	Master   bool     `json:"master"`
	Replicas []string `json:"replicas,omitempty"`
}

type topologyJSON struct {
	Generation uint64     `json:"generation"`
	Nodes      []nodeJSON `json:"nodes"`
	Covered    bool       `json:"fullyCovered"`
}

func main() {
	flag.Parse()
	if seed == "" {
		flag.Usage()
		os.Exit(1)
	}

	opt := config.Default()
	opt.ConnectTimeout = timeout
	client := cluster.NewClient([]clusterurl.Seed{{Addr: seed}}, opt, nil)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "kvwire-topology: %s\n", err)
		os.Exit(1)
	}
	defer client.Close()

	t := client.Current()
	out := topologyJSON{Generation: t.Generation(), Covered: t.IsFullyCovered()}
	replicasByMaster := make(map[topology.NodeId]map[topology.NodeId]bool)
	for _, r := range t.Ranges() {
		set := replicasByMaster[r.Master]
		if set == nil {
			set = make(map[topology.NodeId]bool)
			replicasByMaster[r.Master] = set
		}
		for _, rep := range r.Replicas {
			set[rep] = true
		}
	}

	for _, id := range t.NodeIDs() {
		info, _ := t.Node(id)
		node := nodeJSON{
			ID:     string(id),
			Addr:   string(info.Addr),
			Master: info.Flags&topology.Master != 0,
		}
		for rep := range replicasByMaster[id] {
			node.Replicas = append(node.Replicas, string(rep))
		}
		out.Nodes = append(out.Nodes, node)
	}
	json.NewEncoder(os.Stdout).Encode(&out)
}
