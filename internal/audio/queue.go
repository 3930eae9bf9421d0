package audio

import (
	"context"
	"io"
	"sync"
)

// Chunk is an immutable block of 16-bit little-endian mono PCM.
type Chunk []byte

// ChunkQueue is an unbounded FIFO between the ingest side and the
// recognition uploader. Push never blocks; Close appends an end marker so a
// blocked reader wakes up once every queued chunk has been handed out.
type ChunkQueue struct {
	mu     sync.Mutex
	chunks []Chunk
	closed bool
	ready  chan struct{}
}

// NewChunkQueue creates an empty queue
func NewChunkQueue() *ChunkQueue {
	return &ChunkQueue{ready: make(chan struct{}, 1)}
}

// Push appends a chunk. Pushing to a closed queue is a no-op.
func (q *ChunkQueue) Push(c Chunk) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.chunks = append(q.chunks, c)
	q.mu.Unlock()
	q.signal()
}

// Close marks the end of the stream. It is safe to call more than once.
func (q *ChunkQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Len returns the number of queued chunks
func (q *ChunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}

func (q *ChunkQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop blocks until a chunk is available, the queue is closed and drained
// (io.EOF), or ctx is done.
func (q *ChunkQueue) Pop(ctx context.Context) (Chunk, error) {
	for {
		q.mu.Lock()
		if len(q.chunks) > 0 {
			c := q.chunks[0]
			q.chunks[0] = nil
			q.chunks = q.chunks[1:]
			more := len(q.chunks) > 0 || q.closed
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return c, nil
		}
		if q.closed {
			q.mu.Unlock()
			q.signal()
			return nil, io.EOF
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

// Next blocks for one chunk, then joins every chunk already queued behind
// it into a single upload buffer. It returns io.EOF once the queue is closed
// and empty.
func (q *ChunkQueue) Next(ctx context.Context) ([]byte, error) {
	first, err := q.Pop(ctx)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	rest := q.chunks
	q.chunks = nil
	q.mu.Unlock()

	if len(rest) == 0 {
		return first, nil
	}
	size := len(first)
	for _, c := range rest {
		size += len(c)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, first...)
	for _, c := range rest {
		buf = append(buf, c...)
	}
	return buf, nil
}
