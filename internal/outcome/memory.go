package outcome

import (
	"context"
	"sync"
)

// MemoryPublisher 将流水保留在内存中，主要用于测试与本地开发。
type MemoryPublisher struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryPublisher 创建 MemoryPublisher。
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 实现 Publisher 接口。
func (p *MemoryPublisher) Publish(_ context.Context, record Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, record)
	return nil
}

// Records 返回已发布的流水副本。
func (p *MemoryPublisher) Records() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]Record, len(p.records))
	copy(clone, p.records)
	return clone
}

// Close 对内存实现无需操作。
func (p *MemoryPublisher) Close() error {
	return nil
}
