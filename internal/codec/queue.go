package codec

// WriteQueueElem is one outgoing message. BytesSent is the cursor into Data
// and only ever moves forward.
type WriteQueueElem struct {
	Port      int
	Data      []byte
	BytesSent int
	Timestamp uint64
}

// Remaining returns the bytes not yet packed into a buffer.
func (e *WriteQueueElem) Remaining() []byte {
	return e.Data[e.BytesSent:]
}

// WriteQueue is the FIFO of messages awaiting transmission. It is not safe
// for concurrent use; the session guards it with its own lock.
type WriteQueue struct {
	elems []*WriteQueueElem
}

// Push appends a copy of data for port.
func (q *WriteQueue) Push(port int, data []byte, timestamp uint64) {
	q.elems = append(q.elems, &WriteQueueElem{
		Port:      port,
		Data:      append([]byte(nil), data...),
		Timestamp: timestamp,
	})
}

// Len returns the number of queued messages, including a partly sent head.
func (q *WriteQueue) Len() int {
	return len(q.elems)
}

// Front returns the head of the queue, or nil when empty.
func (q *WriteQueue) Front() *WriteQueueElem {
	if len(q.elems) == 0 {
		return nil
	}
	return q.elems[0]
}

// PopFront removes the head of the queue.
func (q *WriteQueue) PopFront() {
	if len(q.elems) == 0 {
		return
	}
	q.elems[0] = nil
	q.elems = q.elems[1:]
	if len(q.elems) == 0 {
		q.elems = nil
	}
}

// Clear discards every queued message.
func (q *WriteQueue) Clear() {
	q.elems = nil
}

// PendingBytes returns the number of bytes still to be sent.
func (q *WriteQueue) PendingBytes() int {
	n := 0
	for _, e := range q.elems {
		n += len(e.Data) - e.BytesSent
	}
	return n
}
