package fpga

import "sync"

// ring is a bounded FIFO of DMA frames. Push drops the frame when full.
type ring struct {
	mu    sync.Mutex
	buf   []Frame
	head  int
	count int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]Frame, capacity)}
}

func (r *ring) Push(f Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == len(r.buf) {
		return false
	}
	r.buf[(r.head+r.count)%len(r.buf)] = f
	r.count++
	return true
}

func (r *ring) Pop() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return Frame{}, false
	}
	f := r.buf[r.head]
	r.buf[r.head] = Frame{}
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return f, true
}

func (r *ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
