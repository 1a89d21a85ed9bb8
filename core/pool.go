package core

import "sync"

// DescriptorPool recycles TaskDescriptor structs and scratch byte
// buffers, avoiding an allocation on every Get. Its only non-test user is
// cmd/ptobench's descriptor bookkeeping; the worker pool does not use it.
// Mirrors the teacher's sync.Pool-backed object reuse,
// generalized from a pair of fixed payload buffers to one scratch buffer
// pool shared across worker types.
type DescriptorPool struct {
	descriptors sync.Pool
	buffers     sync.Pool
}

// NewDescriptorPool creates a pool whose buffers default to maxArgSize
// bytes of capacity.
func NewDescriptorPool(maxArgSize int) *DescriptorPool {
	return &DescriptorPool{
		descriptors: sync.Pool{
			New: func() interface{} {
				return &TaskDescriptor{}
			},
		},
		buffers: sync.Pool{
			New: func() interface{} {
				return make([]byte, 0, maxArgSize)
			},
		},
	}
}

// Get retrieves a zeroed TaskDescriptor from the pool.
func (p *DescriptorPool) Get() *TaskDescriptor {
	return p.descriptors.Get().(*TaskDescriptor)
}

// Put resets d and returns it to the pool. Callers must not touch d after
// calling Put.
func (p *DescriptorPool) Put(d *TaskDescriptor) {
	if d == nil {
		return
	}
	d.Reset()
	p.descriptors.Put(d)
}

// GetBuffer retrieves a zero-length scratch buffer from the pool.
func (p *DescriptorPool) GetBuffer() []byte {
	return p.buffers.Get().([]byte)
}

// PutBuffer returns a scratch buffer to the pool.
func (p *DescriptorPool) PutBuffer(buf []byte) {
	if buf != nil {
		p.buffers.Put(buf[:0])
	}
}
