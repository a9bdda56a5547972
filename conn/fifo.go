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
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
)

var pushCount, popCount int64

// pendingFIFO is the in-order queue of reply channels awaiting a response
// frame on one MultiplexedConnection. The writer pushes after a request's
// bytes have been handed to the Transport; the reader pops the oldest
// entry for each decoded frame. Grounded in the teacher's tenant.Manager
// map-guarded-by-mutex discipline (tenant/manager.go's m.lock/m.live),
// narrowed here to a single ordered queue instead of a map since ordering,
// not lookup-by-key, is what this structure exists to preserve.
type pendingFIFO struct {
	mu sync.Mutex
	l  list.List
}

func (p *pendingFIFO) push(r *Request) {
	p.mu.Lock()
	p.l.PushBack(r)
	n := p.l.Len()
	p.mu.Unlock()
	c := atomic.AddInt64(&pushCount, 1)
	fmt.Printf("PUSH %d id=%s listlen=%d\n", c, r.ID, n)
}

func (p *pendingFIFO) pop() (*Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	front := p.l.Front()
	if front == nil {
		return nil, false
	}
	p.l.Remove(front)
	r := front.Value.(*Request)
	c := atomic.AddInt64(&popCount, 1)
	fmt.Printf("POP %d id=%s\n", c, r.ID)
	return r, true
}

func (p *pendingFIFO) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.l.Len()
}

// drain removes and returns every still-pending request, in FIFO order,
// for completion with a terminal error.
func (p *pendingFIFO) drain() []*Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Request, 0, p.l.Len())
	for e := p.l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Request))
	}
	p.l.Init()
	return out
}
