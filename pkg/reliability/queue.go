package reliability

import (
	"container/heap"
	"time"
)

// timeoutItem is one entry in the timeout min-heap: a sequence number
// and the instant at which it should be retransmitted if no ack has
// arrived. Items are not removed from the heap when their sequence is
// acked or otherwise retired early — they are recognized as stale and
// ignored when popped, which avoids needing a back-reference from the
// in-flight table into the heap.
type timeoutItem struct {
	sequence uint32
	deadline time.Time
	index    int
}

type timeoutHeap []*timeoutItem

func (h timeoutHeap) Len() int { return len(h) }

func (h timeoutHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}

func (h timeoutHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timeoutHeap) Push(x interface{}) {
	item := x.(*timeoutItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *timeoutHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// pushDeadline pushes a new timeout entry for sequence.
func pushDeadline(h *timeoutHeap, sequence uint32, deadline time.Time) {
	heap.Push(h, &timeoutItem{sequence: sequence, deadline: deadline})
}

// peekDeadline returns the earliest deadline in the heap without
// removing it, and whether the heap is non-empty.
func peekDeadline(h timeoutHeap) (time.Time, bool) {
	if len(h) == 0 {
		return time.Time{}, false
	}
	return h[0].deadline, true
}

// popDeadline removes and returns the earliest timeout entry.
func popDeadline(h *timeoutHeap) *timeoutItem {
	return heap.Pop(h).(*timeoutItem)
}

// fifo is a tiny FIFO queue of uint32 sequence numbers backed by a
// slice, used for the resend queue. Strict arrival-order draining is
// required, which a slice with a head index (rather than a map) makes
// trivial to reason about.
type fifo struct {
	items []uint32
	head  int
}

func (f *fifo) push(seq uint32) {
	f.items = append(f.items, seq)
}

func (f *fifo) front() (uint32, bool) {
	if f.head >= len(f.items) {
		return 0, false
	}
	return f.items[f.head], true
}

func (f *fifo) pop() (uint32, bool) {
	seq, ok := f.front()
	if !ok {
		return 0, false
	}
	f.head++
	if f.head > 64 && f.head*2 > len(f.items) {
		f.compact()
	}
	return seq, true
}

func (f *fifo) len() int {
	return len(f.items) - f.head
}

func (f *fifo) compact() {
	remaining := append([]uint32(nil), f.items[f.head:]...)
	f.items = remaining
	f.head = 0
}

func (f *fifo) reset() {
	f.items = nil
	f.head = 0
}

// ackFifo mirrors fifo but also carries the peer address each pending
// ack must be sent to.
type ackRecord struct {
	sequence uint32
	peerAddr string
}

type ackFifo struct {
	items []ackRecord
	head  int
}

func (f *ackFifo) push(r ackRecord) {
	f.items = append(f.items, r)
}

func (f *ackFifo) front() (ackRecord, bool) {
	if f.head >= len(f.items) {
		return ackRecord{}, false
	}
	return f.items[f.head], true
}

func (f *ackFifo) pop() (ackRecord, bool) {
	r, ok := f.front()
	if !ok {
		return ackRecord{}, false
	}
	f.head++
	if f.head > 64 && f.head*2 > len(f.items) {
		remaining := append([]ackRecord(nil), f.items[f.head:]...)
		f.items = remaining
		f.head = 0
	}
	return r, true
}

func (f *ackFifo) len() int {
	return len(f.items) - f.head
}

func (f *ackFifo) reset() {
	f.items = nil
	f.head = 0
}
