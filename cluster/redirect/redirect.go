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

// Package redirect executes a request against the cluster with retry on
// redirect/transient errors, per spec.md §4.7. It is the engine behind
// cluster resilience: it absorbs MOVED/ASK redirects and transient I/O
// failures up to a bounded retry budget, throttling Topology refreshes
// during a mass-MOVED storm.
//
// The retry shape — an attempt counter plus a fixed-doubling backoff
// schedule — is grounded in the teacher's cmd/snellerd/splitter.go
// partitioning logic and tenant/tnproto/remote.go's Remote.Exec
// dial-then-exec pattern; see DESIGN.md.
package redirect

import (
	"context"
	"encoding/binary"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dchest/siphash"

	"github.com/kvwire/kvwire/cluster/pool"
	"github.com/kvwire/kvwire/cluster/topology"
	"github.com/kvwire/kvwire/conn"
	"github.com/kvwire/kvwire/frame"
)

// Defaults per spec.md §6.
const (
	DefaultMaxRedirects       = 5
	DefaultMaxRetriesOnIO     = 3
	DefaultRetryDelay         = 100 * time.Millisecond
	DefaultMovedStormThresh   = 10
	DefaultMovedStormWindow   = time.Second
	DefaultRefreshCooldown    = 500 * time.Millisecond
)

// TopologyProvider is the slice of cluster.Client the engine needs:
// read the currently published Topology, and trigger (de-duplicated)
// refreshes.
type TopologyProvider interface {
	Current() *topology.Topology
	Refresh(ctx context.Context) (*topology.Topology, error)
}

// Config enumerates the engine's tunable retry/backoff knobs.
type Config struct {
	MaxRedirects         int
	MaxRetriesOnIO       int
	RetryDelay           time.Duration
	MovedStormThreshold  int
	MovedStormWindow     time.Duration
	RefreshCooldown      time.Duration

	// Now and Sleep are the engine's clock and delay function, injectable
	// so tests can fast-forward the storm window and backoff without
	// real sleep, per spec.md §9.
	Now   func() time.Time
	Sleep func(time.Duration)
}

func (c *Config) setDefaults() {
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = DefaultMaxRedirects
	}
	if c.MaxRetriesOnIO <= 0 {
		c.MaxRetriesOnIO = DefaultMaxRetriesOnIO
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MovedStormThreshold <= 0 {
		c.MovedStormThreshold = DefaultMovedStormThresh
	}
	if c.MovedStormWindow <= 0 {
		c.MovedStormWindow = DefaultMovedStormWindow
	}
	if c.RefreshCooldown <= 0 {
		c.RefreshCooldown = DefaultRefreshCooldown
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
}

// Engine is the RedirectEngine of spec.md §4.7.
type Engine struct {
	cfg   Config
	pool  *pool.Pool
	topo  TopologyProvider
	storm stormTracker

	overridesMu sync.RWMutex
	overrides   map[int]topology.NodeAddress
}

// New builds an Engine over p (dispensing connections) and topo
// (publishing/refreshing Topology snapshots).
func New(p *pool.Pool, topo TopologyProvider, cfg Config) *Engine {
	cfg.setDefaults()
	return &Engine{
		cfg:       cfg,
		pool:      p,
		topo:      topo,
		overrides: make(map[int]topology.NodeAddress),
	}
}

// Execute runs f against the node owning targetSlot, retrying across
// redirects and transient I/O failures per spec.md §4.7's algorithm.
// idempotent gates whether a transport-level failure is retried at all,
// per spec.md §9's Open Question decision (see DESIGN.md): the reference
// implementation retries unconditionally, which this library treats as a
// correctness hazard and opts out of by default.
func (e *Engine) Execute(ctx context.Context, f frame.Frame, targetSlot int, idempotent bool) (frame.Frame, error) {
	addr, err := e.resolveMaster(ctx, targetSlot)
	if err != nil {
		return frame.Frame{}, err
	}

	redirects := 0
	ioRetries := 0
	delay := e.cfg.RetryDelay
	var lastRedirect error

	for {
		reply, err := e.attempt(ctx, addr, f, idempotent)
		if err == nil {
			return reply, nil
		}

		switch v := err.(type) {
		case *MovedError:
			redirects++
			lastRedirect = v
			if redirects > e.cfg.MaxRedirects {
				return frame.Frame{}, &TooManyRedirectsError{Attempts: redirects, Last: lastRedirect}
			}
			if e.storm.observe(e.cfg.Now(), e.cfg.MovedStormThreshold, e.cfg.MovedStormWindow, e.cfg.RefreshCooldown) {
				if _, rerr := e.topo.Refresh(ctx); rerr == nil {
					e.storm.reset()
					e.clearOverride(targetSlot)
				}
			} else {
				e.setOverride(targetSlot, v.Addr)
			}
			addr = v.Addr
			continue

		case *AskError:
			redirects++
			lastRedirect = v
			if redirects > e.cfg.MaxRedirects {
				return frame.Frame{}, &TooManyRedirectsError{Attempts: redirects, Last: lastRedirect}
			}
			return e.executeAsk(ctx, v.Addr, f, idempotent)

		case *ioError:
			if !idempotent {
				return frame.Frame{}, v.cause
			}
			ioRetries++
			if ioRetries > e.cfg.MaxRetriesOnIO {
				return frame.Frame{}, v.cause
			}
			e.pool.MarkUnhealthy(addr)
			go e.topo.Refresh(context.Background())
			e.cfg.Sleep(delay)
			delay *= 2
			continue

		default:
			return frame.Frame{}, err
		}
	}
}

// ioError wraps a transport-level failure so Execute's type switch can
// distinguish it from a redirect or a verbatim server error.
type ioError struct{ cause error }

func (e *ioError) Error() string { return e.cause.Error() }
func (e *ioError) Unwrap() error { return e.cause }

// attempt acquires one connection, submits f once, and classifies the
// outcome. A normal reply (including a non-cluster server Error) is
// returned as-is; redirects and transport failures are returned as typed
// errors for Execute's retry loop to interpret.
func (e *Engine) attempt(ctx context.Context, addr topology.NodeAddress, f frame.Frame, idempotent bool) (frame.Frame, error) {
	c, err := e.pool.Acquire(ctx, addr)
	if err != nil {
		return frame.Frame{}, &ioError{cause: err}
	}
	req := conn.NewRequest(f, idempotent)
	reply, err := c.Submit(ctx, req)
	if err != nil {
		e.pool.Release(addr, c, false)
		return frame.Frame{}, &ioError{cause: err}
	}
	e.pool.Release(addr, c, true)

	if reply.Type() != frame.Error {
		return reply, nil
	}
	text, _ := reply.Text()
	switch {
	case strings.HasPrefix(text, "MOVED "):
		slot, newAddr, perr := parseRedirect(text)
		if perr != nil {
			return frame.Frame{}, perr
		}
		return frame.Frame{}, &MovedError{Slot: slot, Addr: newAddr}
	case strings.HasPrefix(text, "ASK "):
		slot, newAddr, perr := parseRedirect(text)
		if perr != nil {
			return frame.Frame{}, perr
		}
		return frame.Frame{}, &AskError{Slot: slot, Addr: newAddr}
	case strings.HasPrefix(text, "CLUSTERDOWN"):
		return frame.Frame{}, ErrClusterDown
	default:
		return reply, nil
	}
}

func (e *Engine) executeAsk(ctx context.Context, addr topology.NodeAddress, f frame.Frame, idempotent bool) (frame.Frame, error) {
	c, err := e.pool.Acquire(ctx, addr)
	if err != nil {
		return frame.Frame{}, err
	}
	askingReply, err := c.Submit(ctx, conn.NewRequest(frame.NewArray([]frame.Frame{frame.NewBulk([]byte("ASKING"))}), true))
	if err != nil {
		e.pool.Release(addr, c, false)
		return frame.Frame{}, err
	}
	if askingReply.Type() == frame.Error {
		e.pool.Release(addr, c, true)
		text, _ := askingReply.Text()
		return frame.Frame{}, &ioError{cause: &serverError{text}}
	}
	reply, err := c.Submit(ctx, conn.NewRequest(f, idempotent))
	if err != nil {
		e.pool.Release(addr, c, false)
		return frame.Frame{}, err
	}
	e.pool.Release(addr, c, true)
	return reply, nil
}

type serverError struct{ text string }

func (e *serverError) Error() string { return "redirect: server error: " + e.text }

func (e *Engine) resolveMaster(ctx context.Context, targetSlot int) (topology.NodeAddress, error) {
	if addr, ok := e.getOverride(targetSlot); ok {
		return addr, nil
	}
	t := e.topo.Current()
	id := t.MasterFor(targetSlot)
	if id == "" {
		refreshed, err := e.topo.Refresh(ctx)
		if err == nil {
			t = refreshed
			id = t.MasterFor(targetSlot)
		}
	}
	if id == "" {
		return "", ErrClusterDown
	}
	node, ok := t.Node(id)
	if !ok {
		return "", ErrClusterDown
	}
	return node.Addr, nil
}

func (e *Engine) getOverride(slot int) (topology.NodeAddress, bool) {
	e.overridesMu.RLock()
	defer e.overridesMu.RUnlock()
	addr, ok := e.overrides[slot]
	return addr, ok
}

func (e *Engine) setOverride(slot int, addr topology.NodeAddress) {
	e.overridesMu.Lock()
	e.overrides[slot] = addr
	e.overridesMu.Unlock()
}

func (e *Engine) clearOverride(slot int) {
	e.overridesMu.Lock()
	delete(e.overrides, slot)
	e.overridesMu.Unlock()
}

// ClearOverrides drops every per-slot MOVED override, called after a full
// Topology refresh so stale overrides cannot outlive the snapshot that
// superseded them.
func (e *Engine) ClearOverrides() {
	e.overridesMu.Lock()
	e.overrides = make(map[int]topology.NodeAddress)
	e.overridesMu.Unlock()
}

func parseRedirect(text string) (int, topology.NodeAddress, error) {
	fields := strings.Fields(text)
	if len(fields) != 3 {
		return 0, "", &serverError{text}
	}
	slot, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, "", &serverError{text}
	}
	return slot, topology.NodeAddress(fields[2]), nil
}

// ReplicaForRead picks a replica for a read-leaning request using
// siphash keyed by requestID, the same deterministic-peer-selection
// shape the teacher's cmd/snellerd/splitter.go uses
// (siphash.Hash(key0, key1, etag) to pick a peer for a blob). This is a
// supplement beyond spec.md's minimum master-only routing — see
// SPEC_FULL.md's §4.7.
func ReplicaForRead(replicas []topology.NodeId, requestID [16]byte) (topology.NodeId, bool) {
	if len(replicas) == 0 {
		return "", false
	}
	k0 := binary.LittleEndian.Uint64(requestID[0:8])
	k1 := binary.LittleEndian.Uint64(requestID[8:16])
	h := siphash.Hash(k0, k1, []byte("kvwire-read-route"))
	return replicas[h%uint64(len(replicas))], true
}
