package server

// outbound is the ordered byte queue waiting to be written to one
// subscriber. Chunks are shared between subscribers and never modified.
type outbound struct {
	// head holds bytes put back after a refused or short write. They go
	// out before anything in chunks.
	head    []byte
	chunks  [][]byte
	pending int
}

func (q *outbound) push(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	q.chunks = append(q.chunks, chunk)
	q.pending += len(chunk)
}

// pushFront puts buf back at the front of the queue.
func (q *outbound) pushFront(buf []byte) {
	if len(buf) == 0 {
		return
	}
	if len(q.head) > 0 {
		merged := make([]byte, 0, len(buf)+len(q.head))
		merged = append(merged, buf...)
		buf = append(merged, q.head...)
		q.pending -= len(q.head)
	}
	q.head = buf
	q.pending += len(buf)
}

// take removes and returns the longest run of queued pieces, in order, whose
// total stays within bound. A single piece larger than bound is returned
// whole. The result is empty only when the queue is.
func (q *outbound) take(bound int) []byte {
	var buf []byte
	switch {
	case len(q.head) > 0:
		buf, q.head = q.head, nil
	case len(q.chunks) > 0:
		buf = q.popChunk()
	default:
		return nil
	}

	coalesced := false
	for len(q.chunks) > 0 && len(buf)+len(q.chunks[0]) <= bound {
		if !coalesced {
			merged := make([]byte, len(buf), bound)
			copy(merged, buf)
			buf = merged
			coalesced = true
		}
		buf = append(buf, q.popChunk()...)
	}
	q.pending -= len(buf)
	return buf
}

func (q *outbound) popChunk() []byte {
	chunk := q.chunks[0]
	q.chunks[0] = nil
	q.chunks = q.chunks[1:]
	if len(q.chunks) == 0 {
		q.chunks = nil
	}
	return chunk
}

// len returns the number of queued bytes.
func (q *outbound) len() int {
	return q.pending
}

// bytes returns a copy of everything queued, in write order.
func (q *outbound) bytes() []byte {
	out := make([]byte, 0, q.pending)
	out = append(out, q.head...)
	for _, chunk := range q.chunks {
		out = append(out, chunk...)
	}
	return out
}

func (q *outbound) reset() {
	q.head = nil
	q.chunks = nil
	q.pending = 0
}
