// Package lock 提供以资源 ID 为粒度的互斥锁。
//
// 库存账本要求对单个商品的 read-check-write 序列串行执行，
// 这里提供两种实现：进程内信号量（单实例部署）和 ZooKeeper
// 临时顺序节点（多实例部署），两者共享同一个接口。
package lock

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrAcquireTimeout 表示在调用方给定的等待窗口内没有拿到锁。
var ErrAcquireTimeout = errors.New("lock: acquire timed out")

// KeyedLocker 按 key 提供互斥。Acquire 阻塞至多到 ctx 截止时间，
// 成功时返回释放函数；超时或取消返回 ErrAcquireTimeout。
type KeyedLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalLocker 是进程内实现，对每个 key 维护一个容量为 1 的信号量。
// 条目数量与商品数同阶，不做回收。
type LocalLocker struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{sems: make(map[string]*semaphore.Weighted)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.sems[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.sems[key] = sem
	}
	l.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, ErrAcquireTimeout
	}
	return func() { sem.Release(1) }, nil
}
