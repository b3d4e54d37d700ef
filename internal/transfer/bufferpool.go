package transfer

import (
	"context"
	"fmt"
)

// BufferPool is a bounded, blocking-acquire pool of fixed-size byte
// buffers, sized ceil(bufferHeapSize/bufferSize) as described in
// SPEC_FULL.md §4.H. Its existence is what bounds concurrent transfer
// parallelism: a download or upload part cannot proceed without one.
type BufferPool struct {
	bufferSize int64
	slots      chan []byte
}

// NewBufferPool allocates count buffers of bufferSize bytes up front and
// fills the pool with them.
func NewBufferPool(bufferSize, bufferHeapSize int64) *BufferPool {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	count := bufferHeapSize / bufferSize
	if bufferHeapSize%bufferSize != 0 {
		count++
	}
	if count < 1 {
		count = 1
	}

	p := &BufferPool{
		bufferSize: bufferSize,
		slots:      make(chan []byte, count),
	}
	for i := int64(0); i < count; i++ {
		p.slots <- make([]byte, bufferSize)
	}
	return p
}

// Acquire blocks until a buffer is available or ctx is cancelled.
func (p *BufferPool) Acquire(ctx context.Context) ([]byte, error) {
	select {
	case buf := <-p.slots:
		return buf, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("transfer: acquire buffer: %w", ctx.Err())
	}
}

// Release returns buf to the pool; if the pool is already full, buf is
// dropped.
func (p *BufferPool) Release(buf []byte) {
	select {
	case p.slots <- buf[:cap(buf)]:
	default:
		// Pool is already full (buf didn't originate here); drop it.
	}
}

// BufferSize returns the fixed size of buffers handed out by this pool.
func (p *BufferPool) BufferSize() int64 {
	return p.bufferSize
}

// Drain removes and discards every buffer currently in the pool, for
// shutdown. It does not wait for buffers currently on loan.
func (p *BufferPool) Drain() {
	for {
		select {
		case <-p.slots:
		default:
			return
		}
	}
}
