package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalLockSerializes(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(ctx, l, "BTCUSDT:5:20", time.Second, func() error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			if err != nil {
				t.Errorf("加锁失败: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("同一个 key 同时只能有一个持有者, 得到 %d", maxActive)
	}
}

func TestLocalLockTryAndTimeout(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "a", time.Second)
	if err != nil || !ok {
		t.Fatalf("第一次 TryLock 应成功: %v %v", ok, err)
	}
	if ok, _ := l.TryLock(ctx, "a", time.Second); ok {
		t.Error("已被占用时 TryLock 应失败")
	}
	if ok, _ := l.TryLock(ctx, "b", time.Second); !ok {
		t.Error("不同 key 互不影响")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.Lock(timeoutCtx, "a", time.Second); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("期望超时, 得到 %v", err)
	}

	if err := l.Extend(ctx, "a", time.Second); err != nil {
		t.Errorf("持有时 Extend 应成功: %v", err)
	}
	if err := l.Unlock(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := l.Unlock(ctx, "a"); !errors.Is(err, ErrNotHeld) {
		t.Errorf("重复释放应返回 ErrNotHeld, 得到 %v", err)
	}
}

func TestFactoryDisabledReturnsLocal(t *testing.T) {
	l, err := NewDistributedLock(&Config{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := l.(*LocalLock); !ok {
		t.Errorf("未启用时应返回 LocalLock, 得到 %T", l)
	}

	if _, err := NewDistributedLock(&Config{Enabled: true, Type: "etcd"}); err == nil {
		t.Error("不支持的类型应报错")
	}
}
