package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradeforge/metrics"
)

// LocalLock 进程内锁（单实例模式），忽略 TTL
type LocalLock struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLocalLock 创建进程内锁
func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]chan struct{})}
}

// Lock 获取锁，阻塞直到成功或 ctx 结束
func (l *LocalLock) Lock(ctx context.Context, key string, ttl time.Duration) error {
	for {
		l.mu.Lock()
		wait, busy := l.held[key]
		if !busy {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			metrics.GetPrometheusMetrics().RecordLockAcquire("acquired")
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			metrics.GetPrometheusMetrics().RecordLockAcquire("timeout")
			return ctx.Err()
		case <-wait:
		}
	}
}

// TryLock 尝试获取锁
func (l *LocalLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		metrics.GetPrometheusMetrics().RecordLockAcquire("busy")
		return false, nil
	}
	l.held[key] = make(chan struct{})
	metrics.GetPrometheusMetrics().RecordLockAcquire("acquired")
	return true, nil
}

// Unlock 释放锁并唤醒等待者
func (l *LocalLock) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.held[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotHeld, key)
	}
	delete(l.held, key)
	close(ch)
	return nil
}

// Extend 进程内锁没有过期时间，只检查是否持有
func (l *LocalLock) Extend(ctx context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotHeld, key)
	}
	return nil
}

func (l *LocalLock) Close() error {
	return nil
}
