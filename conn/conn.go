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
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kvwire/kvwire/frame"
	"github.com/kvwire/kvwire/transport"
)

// DefaultQueueSize is the default bound on the number of submitted
// requests that may be buffered ahead of the writer, per spec.md §6's
// request_queue_size default.
const DefaultQueueSize = 1024

// Options configures a MultiplexedConnection.
type Options struct {
	// QueueSize bounds the request channel; a full channel is this
	// connection's sole flow-control mechanism. Zero means
	// DefaultQueueSize.
	QueueSize int

	// IOTimeout, if non-zero, bounds every individual read and write on
	// the underlying Transport.
	IOTimeout time.Duration

	// MaxFrameSize caps decoded Bulk payload and Array length; zero means
	// frame.DefaultMaxFrameSize.
	MaxFrameSize int

	// Logger receives diagnostic lines. A nil Logger disables logging,
	// matching the teacher's tenant.Manager (tenant/manager.go's
	// WithLogger option: "If no logger is set... no output is logged").
	Logger *log.Logger
}

// MultiplexedConnection shares one transport.Transport among many
// concurrent callers, matching replies to requests in the order they were
// written. See the frame package for the wire codec and the transport
// package for the underlying byte stream.
type MultiplexedConnection struct {
	t   transport.Transport
	opt Options

	reqCh    chan *Request
	shutdown chan struct{}
	shutOnce sync.Once
	closeErr atomic.Value // error

	// subMu and closed hand the request channel off from submitters to the
	// exiting writer: once closed is set no new submission can enter reqCh,
	// so the writer's final drain is guaranteed to see every straggler.
	subMu  sync.RWMutex
	closed bool

	pending pendingFIFO

	wg sync.WaitGroup
}

// New starts a MultiplexedConnection over t. The writer and reader tasks
// begin immediately; callers should invoke Shutdown or Close once they are
// done submitting requests.
func New(t transport.Transport, opt Options) *MultiplexedConnection {
	if opt.QueueSize <= 0 {
		opt.QueueSize = DefaultQueueSize
	}
	if opt.MaxFrameSize <= 0 {
		opt.MaxFrameSize = frame.DefaultMaxFrameSize
	}
	c := &MultiplexedConnection{
		t:        t,
		opt:      opt,
		reqCh:    make(chan *Request, opt.QueueSize),
		shutdown: make(chan struct{}),
	}
	c.wg.Add(2)
	go c.writerLoop()
	go c.readerLoop()
	return c
}

func (c *MultiplexedConnection) logf(format string, args ...interface{}) {
	if c.opt.Logger != nil {
		c.opt.Logger.Printf(format, args...)
	}
}

// Submit writes req's Frame and waits for the matching reply, or for ctx
// to be done, or for the connection to close. A caller whose ctx is
// cancelled after the request has already been written still has its
// reply discarded harmlessly when the reader eventually matches it — the
// reply channel is buffered so the send never blocks (spec.md §5's
// cancellation semantics).
func (c *MultiplexedConnection) Submit(ctx context.Context, req *Request) (frame.Frame, error) {
	c.subMu.RLock()
	if c.closed {
		c.subMu.RUnlock()
		return frame.Frame{}, c.submitErr()
	}
	select {
	case c.reqCh <- req:
		c.subMu.RUnlock()
	case <-c.shutdown:
		c.subMu.RUnlock()
		return frame.Frame{}, c.submitErr()
	case <-ctx.Done():
		c.subMu.RUnlock()
		return frame.Frame{}, ctx.Err()
	}

	select {
	case rep := <-req.reply:
		return rep.Frame, rep.Err
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	}
}

// Ping issues a zero-argument liveness probe and reports whether the peer
// answered. It is not part of spec.md's minimum surface but is named there
// as an optional wire message (§6); see SPEC_FULL.md.
func (c *MultiplexedConnection) Ping(ctx context.Context) error {
	req := NewRequest(frame.NewArray([]frame.Frame{frame.NewBulk([]byte("PING"))}), true)
	reply, err := c.Submit(ctx, req)
	if err != nil {
		return err
	}
	if reply.Type() == frame.Error {
		text, _ := reply.Text()
		return errors.New("conn: PING failed: " + text)
	}
	return nil
}

// Shutdown begins a graceful drain: no new Submit calls are accepted, any
// requests already buffered in the request channel are written out, the
// Transport's write half is then closed, and the reader keeps running
// until end-of-stream. Shutdown blocks until both tasks have exited or ctx
// is done.
func (c *MultiplexedConnection) Shutdown(ctx context.Context) error {
	c.shutOnce.Do(func() { close(c.shutdown) })
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close is a non-blocking, best-effort shutdown for callers that cannot
// wait on the drain; it signals shutdown and closes the underlying
// Transport immediately, which unblocks the reader even if the peer never
// sends another byte.
func (c *MultiplexedConnection) Close() error {
	c.shutOnce.Do(func() { close(c.shutdown) })
	return c.t.Close()
}

// PendingCount reports the number of requests written but not yet
// matched with a reply. Exposed for tests and diagnostics.
func (c *MultiplexedConnection) PendingCount() int {
	return c.pending.len()
}

func (c *MultiplexedConnection) triggerShutdown(err error) {
	c.shutOnce.Do(func() {
		if err != nil {
			c.closeErr.Store(err)
		}
		close(c.shutdown)
	})
}

// submitErr is what a rejected submitter sees: the transport failure that
// ended the connection if there was one, else the plain Submit error.
func (c *MultiplexedConnection) submitErr() error {
	if v := c.closeErr.Load(); v != nil {
		return v.(error)
	}
	return ErrSubmit
}

func (c *MultiplexedConnection) writerLoop() {
	defer c.wg.Done()
	defer c.failLatecomers()
	var enc frame.Encoder
	w := c.t.WriteHalf()
	for {
		select {
		case req := <-c.reqCh:
			if !c.writeOne(&enc, w, req) {
				return
			}
		case <-c.shutdown:
			c.drainRemaining(&enc, w)
			_ = c.t.CloseWrite()
			return
		}
	}
}

// writeOne encodes and writes req, then enqueues its reply channel on the
// pending FIFO. The enqueue happens strictly after the write returns, so
// the reader can never match a reply to a request whose bytes have not
// yet reached the Transport (spec.md §4.3's FIFO correctness rule).
func (c *MultiplexedConnection) writeOne(enc *frame.Encoder, w io.Writer, req *Request) bool {
	enc.Reset()
	enc.Encode(req.Frame)
	if c.opt.IOTimeout > 0 {
		c.t.SetWriteDeadline(time.Now().Add(c.opt.IOTimeout))
	}
	if _, err := w.Write(enc.Bytes()); err != nil {
		println("WRITEONE ERR:", err.Error())
		c.fail(err)
		return false
	}
	c.pending.push(req)
	return true
}

// failLatecomers rejects any submission that slipped into the request
// channel after the shutdown drain, so no caller is ever left waiting on
// a reply that will never be written.
func (c *MultiplexedConnection) failLatecomers() {
	c.subMu.Lock()
	c.closed = true
	c.subMu.Unlock()
	for {
		select {
		case req := <-c.reqCh:
			req.reply <- Reply{Err: c.submitErr()}
		default:
			return
		}
	}
}

// drainRemaining writes every request already buffered in the request
// channel at the moment shutdown began, without blocking for more.
func (c *MultiplexedConnection) drainRemaining(enc *frame.Encoder, w io.Writer) {
	for {
		select {
		case req := <-c.reqCh:
			if !c.writeOne(enc, w, req) {
				return
			}
		default:
			return
		}
	}
}

func (c *MultiplexedConnection) readerLoop() {
	defer c.wg.Done()
	r := c.t.ReadHalf()
	var dec frame.Decoder
	dec.MaxFrameSize = c.opt.MaxFrameSize

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		for {
			f, n, err := dec.Decode(buf)
			if err == frame.ErrIncomplete {
				break
			}
			if err != nil {
				println("READERLOOP DECODE ERR:", err.Error())
				c.fail(err)
				return
			}
			buf = buf[n:]
			c.deliver(f)
		}

		if c.opt.IOTimeout > 0 {
			c.t.SetReadDeadline(time.Now().Add(c.opt.IOTimeout))
		}
		n, err := r.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			println("READERLOOP READ ERR:", err.Error())
			if errors.Is(err, io.EOF) {
				c.closeGraceful()
			} else {
				c.fail(err)
			}
			return
		}
	}
}

func (c *MultiplexedConnection) deliver(f frame.Frame) {
	req, ok := c.pending.pop()
	if !ok {
		println("DELIVER: unsolicited reply with empty pending queue")
		c.logf("conn: unsolicited reply with empty pending queue, closing connection")
		c.fail(errors.New("unsolicited reply: pending queue empty"))
		return
	}
	req.reply <- Reply{Frame: f}
}

// fail terminates the connection after a Transport-level or decode
// failure: every still-pending request is completed with a TransportError
// carrying the cause, and no further Submit calls are accepted.
func (c *MultiplexedConnection) fail(cause error) {
	te := &TransportError{Err: cause}
	c.triggerShutdown(te)
	for _, req := range c.pending.drain() {
		req.reply <- Reply{Err: te}
	}
	c.t.Close()
}

// closeGraceful handles a clean end-of-stream: every still-pending request
// is completed with ErrConnectionClosed rather than a TransportError,
// matching spec.md §4.3's shutdown semantics.
func (c *MultiplexedConnection) closeGraceful() {
	c.triggerShutdown(ErrConnectionClosed)
	for _, req := range c.pending.drain() {
		req.reply <- Reply{Err: ErrConnectionClosed}
	}
	c.t.Close()
}
