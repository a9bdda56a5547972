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

package pool

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kvwire/kvwire/cluster/topology"
	"github.com/kvwire/kvwire/conn"
	"github.com/kvwire/kvwire/transport"
)

const testAddr = topology.NodeAddress("10.0.0.1:7000")

// discardFactory dials in-memory connections whose peer just discards
// whatever the writer sends; enough for exercising the pool's accounting.
func discardFactory(ctx context.Context, addr topology.NodeAddress) (*conn.MultiplexedConnection, error) {
	client, server := net.Pipe()
	go func() {
		io.Copy(io.Discard, server)
		server.Close()
	}()
	return conn.New(transport.NewTCP(client), conn.Options{}), nil
}

// fakeClock is a mutable time source handed to the pool via Config.Now.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAcquireReusesReleasedConnection(t *testing.T) {
	p := New(discardFactory, Config{})
	defer p.Close()

	c1, err := p.Acquire(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(testAddr, c1, true)

	c2, err := p.Acquire(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if c2 != c1 {
		t.Fatal("expected the released connection to be reused")
	}
	if total, inUse := p.Stats(testAddr); total != 1 || inUse != 1 {
		t.Fatalf("Stats = (%d, %d), want (1, 1)", total, inUse)
	}
}

func TestAcquireBlocksAtCapacity(t *testing.T) {
	p := New(discardFactory, Config{MaxConnectionsPerNode: 1})
	defer p.Close()

	c1, err := p.Acquire(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	got := make(chan *conn.MultiplexedConnection, 1)
	go func() {
		c, err := p.Acquire(context.Background(), testAddr)
		if err != nil {
			return
		}
		got <- c
	}()

	select {
	case <-got:
		t.Fatal("second Acquire did not block at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(testAddr, c1, true)
	select {
	case c2 := <-got:
		if c2 != c1 {
			t.Fatal("waiter should have received the released connection")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never woke after Release")
	}
}

func TestAcquireRespectsContext(t *testing.T) {
	p := New(discardFactory, Config{MaxConnectionsPerNode: 1})
	defer p.Close()

	if _, err := p.Acquire(context.Background(), testAddr); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Acquire(ctx, testAddr)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestReleaseUnhealthyDiscards(t *testing.T) {
	p := New(discardFactory, Config{})
	defer p.Close()

	c1, err := p.Acquire(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(testAddr, c1, false)
	if total, _ := p.Stats(testAddr); total != 0 {
		t.Fatalf("Stats total = %d after unhealthy release, want 0", total)
	}
}

func TestMarkUnhealthyEvictsIdleAndFlagsInUse(t *testing.T) {
	p := New(discardFactory, Config{})
	defer p.Close()

	busy, err := p.Acquire(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	idle, err := p.Acquire(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(testAddr, idle, true)

	p.MarkUnhealthy(testAddr)
	if total, inUse := p.Stats(testAddr); total != 1 || inUse != 1 {
		t.Fatalf("Stats = (%d, %d) after MarkUnhealthy, want only the in-use entry", total, inUse)
	}

	// the flagged in-use connection is discarded on release even though
	// the caller thought it was fine.
	p.Release(testAddr, busy, true)
	if total, _ := p.Stats(testAddr); total != 0 {
		t.Fatalf("Stats total = %d after releasing a flagged connection, want 0", total)
	}
}

// TestMarkUnhealthyWakesWaiters: evicting idle entries frees bucket
// capacity, so a goroutine parked in Acquire's waiter queue must be woken
// to dial a replacement rather than staying parked until some unrelated
// Release. The waiter is parked by hand, reproducing the state a blocked
// Acquire is left in when its capacity check raced the entries going idle.
func TestMarkUnhealthyWakesWaiters(t *testing.T) {
	p := New(discardFactory, Config{MaxConnectionsPerNode: 1})
	defer p.Close()

	c1, err := p.Acquire(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(testAddr, c1, true)

	b := p.bucketFor(testAddr)
	wake := make(chan struct{}, 1)
	b.mu.Lock()
	b.waiters = append(b.waiters, wake)
	b.mu.Unlock()

	p.MarkUnhealthy(testAddr)
	select {
	case <-wake:
	case <-time.After(2 * time.Second):
		t.Fatal("MarkUnhealthy freed capacity without waking the parked waiter")
	}
}

func TestSweepEvictsIdleButKeepsMinimum(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	p := New(discardFactory, Config{
		MaxIdleTime:         time.Minute,
		MinIdlePerNode:      1,
		HealthCheckInterval: time.Hour, // sweep driven manually below
		Now:                 clk.Now,
	})
	defer p.Close()

	var conns []*conn.MultiplexedConnection
	for i := 0; i < 3; i++ {
		c, err := p.Acquire(context.Background(), testAddr)
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		conns = append(conns, c)
	}
	for _, c := range conns {
		p.Release(testAddr, c, true)
	}

	clk.advance(2 * time.Minute)
	p.sweepOnce()

	if total, _ := p.Stats(testAddr); total != 1 {
		t.Fatalf("Stats total = %d after sweep, want the MinIdlePerNode floor of 1", total)
	}
}

func TestSweepKeepsFreshConnections(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	p := New(discardFactory, Config{
		MaxIdleTime:         time.Minute,
		HealthCheckInterval: time.Hour,
		Now:                 clk.Now,
	})
	defer p.Close()

	c1, err := p.Acquire(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(testAddr, c1, true)

	clk.advance(30 * time.Second)
	p.sweepOnce()
	if total, _ := p.Stats(testAddr); total != 1 {
		t.Fatalf("Stats total = %d, want 1: a fresh connection must survive the sweep", total)
	}
}

func TestAcquireAfterCloseFails(t *testing.T) {
	p := New(discardFactory, Config{})
	p.Close()
	if _, err := p.Acquire(context.Background(), testAddr); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
