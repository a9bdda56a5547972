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

package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kvwire/kvwire/frame"
	"github.com/kvwire/kvwire/transport"
)

// serveFrames runs a mock peer on the server side of a pipe: it decodes
// request frames in arrival order and answers the i-th with reply(i, req).
// It exits when the pipe closes.
func serveFrames(c net.Conn, reply func(i int, req frame.Frame) frame.Frame) {
	defer c.Close()
	var dec frame.Decoder
	var enc frame.Encoder
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	i := 0
	for {
		for {
			f, n, err := dec.Decode(buf)
			if err == frame.ErrIncomplete {
				break
			}
			if err != nil {
				return
			}
			buf = buf[n:]
			enc.Reset()
			enc.Encode(reply(i, f))
			if _, err := c.Write(enc.Bytes()); err != nil {
				return
			}
			i++
		}
		n, err := c.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			return
		}
	}
}

func pipeConn(reply func(i int, req frame.Frame) frame.Frame) *MultiplexedConnection {
	client, server := net.Pipe()
	go serveFrames(server, reply)
	return New(transport.NewTCP(client), Options{})
}

// TestFIFOUnderConcurrency is spec.md §8 scenario 3: many concurrent
// submitters, a mock that answers each request in the order it arrived
// with an echo of the request payload. If the pending FIFO ever matched a
// reply to the wrong submitter, some caller would observe a foreign
// payload.
func TestFIFOUnderConcurrency(t *testing.T) {
	c := pipeConn(func(i int, req frame.Frame) frame.Frame {
		return req.Clone()
	})
	defer c.Close()

	const n = 1000
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := fmt.Sprintf("req-%d", i)
			req := NewRequest(frame.NewArray([]frame.Frame{frame.NewBulk([]byte(payload))}), true)
			reply, err := c.Submit(context.Background(), req)
			if err != nil {
				errs <- fmt.Errorf("submitter %d: %w", i, err)
				return
			}
			elems, ok := reply.Elems()
			if !ok || len(elems) != 1 {
				errs <- fmt.Errorf("submitter %d: reply %v is not a 1-element array", i, reply)
				return
			}
			b, _ := elems[0].Bytes()
			if string(b) != payload {
				errs <- fmt.Errorf("submitter %d: got %q, want %q", i, b, payload)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestPing(t *testing.T) {
	c := pipeConn(func(i int, req frame.Frame) frame.Frame {
		return frame.NewSimple("PONG")
	})
	defer c.Close()
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

// TestPeerCloseCompletesPending checks that a clean end-of-stream from the
// peer completes every still-pending reply channel with ConnectionClosed
// rather than leaving its submitter blocked.
func TestPeerCloseCompletesPending(t *testing.T) {
	client, server := net.Pipe()
	c := New(transport.NewTCP(client), Options{})
	defer c.Close()

	// read the request so it lands in the pending FIFO, then hang up
	// without replying.
	go func() {
		tmp := make([]byte, 256)
		server.Read(tmp)
		server.Close()
	}()

	req := NewRequest(frame.NewArray([]frame.Frame{frame.NewBulk([]byte("GET")), frame.NewBulk([]byte("k"))}), true)
	_, err := c.Submit(context.Background(), req)
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("err = %v, want ErrConnectionClosed", err)
	}
}

// TestDecodeFailureCompletesPendingWithTransportError checks that a peer
// speaking garbage terminates the connection and surfaces a TransportError
// to every pending submitter.
func TestDecodeFailureCompletesPendingWithTransportError(t *testing.T) {
	client, server := net.Pipe()
	c := New(transport.NewTCP(client), Options{})
	defer c.Close()

	go func() {
		tmp := make([]byte, 256)
		server.Read(tmp)
		server.Write([]byte("?this is not a frame\r\n"))
	}()

	req := NewRequest(frame.NewInteger(7), true)
	_, err := c.Submit(context.Background(), req)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
}

func TestSubmitAfterCloseRejected(t *testing.T) {
	c := pipeConn(func(i int, req frame.Frame) frame.Frame {
		return frame.NewSimple("OK")
	})
	c.Close()

	// give the writer a moment to observe shutdown and fail latecomers.
	deadline := time.Now().Add(2 * time.Second)
	for {
		req := NewRequest(frame.NewInteger(1), true)
		_, err := c.Submit(context.Background(), req)
		if err != nil {
			if errors.Is(err, ErrSubmit) || errors.Is(err, ErrConnectionClosed) {
				return
			}
			t.Fatalf("err = %v, want ErrSubmit or ErrConnectionClosed", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("Submit kept succeeding after Close")
		}
	}
}

func TestShutdownDrainsAndExits(t *testing.T) {
	c := pipeConn(func(i int, req frame.Frame) frame.Frame {
		return frame.NewSimple("OK")
	})

	req := NewRequest(frame.NewArray([]frame.Frame{frame.NewBulk([]byte("PING"))}), true)
	if _, err := c.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if n := c.PendingCount(); n != 0 {
		t.Fatalf("PendingCount() = %d after shutdown, want 0", n)
	}
}

// TestSubmitContextCancelled checks that a caller whose context expires
// while awaiting a reply unblocks; the reply itself is discarded
// harmlessly because the reply channel is buffered.
func TestSubmitContextCancelled(t *testing.T) {
	block := make(chan struct{})
	c := pipeConn(func(i int, req frame.Frame) frame.Frame {
		<-block
		return frame.NewSimple("OK")
	})
	defer c.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := NewRequest(frame.NewInteger(1), true)
	_, err := c.Submit(ctx, req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}
