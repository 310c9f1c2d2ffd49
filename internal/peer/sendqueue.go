package peer

import "container/list"

// sendQueue holds encoded outbound frames. At most one frame is in flight:
// begin hands out the head only when nothing is being written, and finish
// releases the slot. Callers hold the owning Peer's lock.
type sendQueue struct {
	frames  list.List
	sending []byte
	closed  bool
	written uint64
}

// push appends b. It reports false once the queue is closed.
func (q *sendQueue) push(b []byte) bool {
	if q.closed {
		return false
	}
	q.frames.PushBack(b)
	return true
}

// pushFront places b ahead of every queued frame. The in-flight frame, if
// any, is unaffected.
func (q *sendQueue) pushFront(b []byte) bool {
	if q.closed {
		return false
	}
	q.frames.PushFront(b)
	return true
}

// begin moves the head into the in-flight slot and returns it. It returns
// false when a write is already outstanding, the queue is empty, or closed.
func (q *sendQueue) begin() ([]byte, bool) {
	if q.closed || q.sending != nil {
		return nil, false
	}
	head := q.frames.Front()
	if head == nil {
		return nil, false
	}
	q.frames.Remove(head)
	q.sending = head.Value.([]byte)
	return q.sending, true
}

func (q *sendQueue) finish() {
	if q.sending == nil {
		return
	}
	q.sending = nil
	q.written++
}

func (q *sendQueue) inFlight() bool {
	return q.sending != nil
}

// len counts queued frames, excluding the one in flight.
func (q *sendQueue) len() int {
	return q.frames.Len()
}

// close drops every queued frame and refuses further pushes. It returns the
// number of frames dropped.
func (q *sendQueue) close() int {
	if q.closed {
		return 0
	}
	q.closed = true
	n := q.frames.Len()
	q.frames.Init()
	return n
}
