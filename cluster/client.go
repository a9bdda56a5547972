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

// Package cluster is the ClusterClient of spec.md §4.8: it coordinates
// slot calculation, topology discovery, the connection pool, and the
// redirect engine behind a key-addressed API.
package cluster

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/kvwire/kvwire/cluster/clusterurl"
	"github.com/kvwire/kvwire/cluster/config"
	"github.com/kvwire/kvwire/cluster/pool"
	"github.com/kvwire/kvwire/cluster/redirect"
	"github.com/kvwire/kvwire/cluster/slot"
	"github.com/kvwire/kvwire/cluster/topology"
	"github.com/kvwire/kvwire/conn"
	"github.com/kvwire/kvwire/frame"
	"github.com/kvwire/kvwire/transport"
)

// state models the lifecycle spec.md §4.8 names: Uninitialized,
// Discovering, Ready. There is no terminal failure state: a Client that
// loses connectivity stays Ready and surfaces errors to callers until a
// refresh succeeds again.
type state int32

const (
	stateUninitialized state = iota
	stateDiscovering
	stateReady
)

// Client is the ClusterClient. Construct one with NewClient and call
// Connect before issuing commands.
type Client struct {
	seeds  []clusterurl.Seed
	opt    config.Options
	dialer transport.Dialer
	logger *log.Logger

	pool    *pool.Pool
	engine  *redirect.Engine
	topoPtr atomic.Pointer[topology.Topology]
	state   atomic.Int32

	refreshMu   sync.Mutex
	refreshWait chan struct{} // non-nil while a refresh is in flight
}

// NewClient builds a Client against seeds, using opt for every timeout
// and pool/redirect tunable spec.md §6 names. Call Connect before use.
func NewClient(seeds []clusterurl.Seed, opt config.Options, logger *log.Logger) *Client {
	c := &Client{
		seeds:  seeds,
		opt:    opt,
		dialer: transport.Dialer{ConnectTimeout: opt.ConnectTimeout},
		logger: logger,
	}
	c.pool = pool.New(c.dialConn, pool.Config{
		MaxConnectionsPerNode: opt.MaxConnectionsPerNode,
		MinIdlePerNode:        opt.MinIdlePerNode,
		MaxIdleTime:           opt.MaxIdleTime,
		HealthCheckInterval:   opt.HealthCheckInterval,
	})
	c.engine = redirect.New(c.pool, c, redirect.Config{
		MaxRedirects:        opt.MaxRedirects,
		MaxRetriesOnIO:      opt.MaxRetriesOnIO,
		RetryDelay:          opt.RetryDelay,
		MovedStormThreshold: opt.MovedStormThreshold,
		MovedStormWindow:    opt.MovedStormWindow,
		RefreshCooldown:     opt.RefreshCooldown,
	})
	c.state.Store(int32(stateUninitialized))
	return c
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

func (c *Client) dialConn(ctx context.Context, addr topology.NodeAddress) (*conn.MultiplexedConnection, error) {
	t, err := c.dialer.Dial(ctx, string(addr))
	if err != nil {
		return nil, err
	}
	return conn.New(t, conn.Options{
		QueueSize:    c.opt.RequestQueueSize,
		IOTimeout:    c.opt.IOTimeout,
		MaxFrameSize: c.opt.MaxFrameSize,
		Logger:       c.logger,
	}), nil
}

// Connect contacts seeds in order until one yields a Topology, per
// spec.md §4.8's Uninitialized -> Discovering -> Ready transition.
func (c *Client) Connect(ctx context.Context) error {
	c.state.Store(int32(stateDiscovering))
	var lastErr error
	for _, seed := range c.seeds {
		t, err := c.discover(ctx, topology.NodeAddress(seed.Addr))
		if err != nil {
			lastErr = err
			c.logf("cluster: seed %s failed: %v", seed.Addr, err)
			continue
		}
		c.topoPtr.Store(t)
		c.state.Store(int32(stateReady))
		return nil
	}
	c.state.Store(int32(stateUninitialized))
	if lastErr != nil {
		return fmt.Errorf("%w: %s", ErrClusterUnreachable, lastErr)
	}
	return ErrClusterUnreachable
}

// discover fetches a Topology from addr, preferring the Slots form and
// falling back to the Nodes form if the server rejects it, per spec.md
// §4.8.
func (c *Client) discover(ctx context.Context, addr topology.NodeAddress) (*topology.Topology, error) {
	mc, err := c.dialConn(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer mc.Close()

	gen := c.nextGeneration()

	slotsReply, err := mc.Submit(ctx, conn.NewRequest(cmdFrame("CLUSTER", "SLOTS"), true))
	if err == nil && slotsReply.Type() != frame.Error {
		return topology.FromSlots(slotsReply, gen)
	}

	nodesReply, err := mc.Submit(ctx, conn.NewRequest(cmdFrame("CLUSTER", "NODES"), true))
	if err != nil {
		return nil, err
	}
	if nodesReply.Type() == frame.Error {
		text, _ := nodesReply.Text()
		return nil, fmt.Errorf("cluster: CLUSTER NODES failed: %s", text)
	}
	text, ok := nodesReply.Text()
	if !ok {
		if b, ok2 := nodesReply.Bytes(); ok2 {
			text = string(b)
		} else {
			return nil, fmt.Errorf("cluster: CLUSTER NODES reply has unexpected type %s", nodesReply.Type())
		}
	}
	return topology.FromNodes(text, gen)
}

var generationCounter atomic.Uint64

func (c *Client) nextGeneration() uint64 {
	return generationCounter.Add(1)
}

// Ready reports whether Connect has succeeded at least once.
func (c *Client) Ready() bool {
	return state(c.state.Load()) == stateReady
}

// Current implements redirect.TopologyProvider.
func (c *Client) Current() *topology.Topology {
	return c.topoPtr.Load()
}

// Refresh implements redirect.TopologyProvider: it fetches a fresh
// Topology from the first reachable seed or known node, de-duplicating
// concurrent calls so they converge on one in-flight refresh, per
// spec.md §4.8's "an in-flight refresh is de-duplicated" rule.
func (c *Client) Refresh(ctx context.Context) (*topology.Topology, error) {
	c.refreshMu.Lock()
	if c.refreshWait != nil {
		wait := c.refreshWait
		c.refreshMu.Unlock()
		select {
		case <-wait:
			return c.Current(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	wait := make(chan struct{})
	c.refreshWait = wait
	c.refreshMu.Unlock()

	t, err := c.refreshOnce(ctx)

	c.refreshMu.Lock()
	c.refreshWait = nil
	c.refreshMu.Unlock()
	close(wait)

	if err != nil {
		return nil, err
	}
	c.engine.ClearOverrides()
	return t, nil
}

func (c *Client) refreshOnce(ctx context.Context) (*topology.Topology, error) {
	addrs := c.candidateAddrs()
	var lastErr error
	for _, addr := range addrs {
		t, err := c.discover(ctx, addr)
		if err != nil {
			lastErr = err
			continue
		}
		c.topoPtr.Store(t)
		return t, nil
	}
	if lastErr == nil {
		lastErr = ErrClusterUnreachable
	}
	return nil, lastErr
}

// candidateAddrs prefers currently-known node addresses over the original
// seed list, since the seeds may have since left the cluster.
func (c *Client) candidateAddrs() []topology.NodeAddress {
	var out []topology.NodeAddress
	if t := c.Current(); t != nil {
		for _, id := range t.NodeIDs() {
			if n, ok := t.Node(id); ok {
				out = append(out, n.Addr)
			}
		}
	}
	for _, s := range c.seeds {
		out = append(out, topology.NodeAddress(s.Addr))
	}
	return out
}

// RefreshTopology is the user-facing name for Refresh, matching spec.md
// §4.8's refresh_topology().
func (c *Client) RefreshTopology(ctx context.Context) error {
	_, err := c.Refresh(ctx)
	return err
}

// Close releases the connection pool. It does not attempt a graceful
// per-connection drain; callers that need that should stop issuing
// commands before calling Close.
func (c *Client) Close() error {
	return c.pool.Close()
}

func cmdFrame(args ...string) frame.Frame {
	elems := make([]frame.Frame, len(args))
	for i, a := range args {
		elems[i] = frame.NewBulk([]byte(a))
	}
	return frame.NewArray(elems)
}

// validateSameSlot fails CrossSlot before any network I/O if keys do not
// all hash to the same slot, per spec.md §4.8 and the testable property
// in spec.md §8 ("MUST fail before any network I/O").
func validateSameSlot(keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	first := slot.Of(keys[0])
	for _, k := range keys[1:] {
		if slot.Of(k) != first {
			return 0, &CrossSlotError{Keys: keys}
		}
	}
	return first, nil
}
