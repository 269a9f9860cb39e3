// internal/services/lock_manager.go
package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LockManager 按剧本 ID 分配读写锁
type LockManager struct {
	locks      map[string]*lockInfo
	globalLock sync.Mutex
	lockTTL    time.Duration
	maxLocks   int
}

// lockInfo 包装锁和使用信息
type lockInfo struct {
	mu       sync.RWMutex
	lastUsed atomic.Int64
	// 正在使用的协程数，大于 0 时不会被清理
	refs atomic.Int32
}

// NewLockManager 创建锁管理器
func NewLockManager() *LockManager {
	return &LockManager{
		locks:    make(map[string]*lockInfo),
		lockTTL:  30 * time.Minute,
		maxLocks: 200,
	}
}

// acquire 取得锁信息并增加引用
func (lm *LockManager) acquire(id string) *lockInfo {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, ok := lm.locks[id]
	if !ok {
		info = &lockInfo{}
		lm.locks[id] = info
	}
	info.refs.Add(1)
	info.lastUsed.Store(time.Now().UnixNano())
	return info
}

func (lm *LockManager) release(info *lockInfo) {
	info.lastUsed.Store(time.Now().UnixNano())
	info.refs.Add(-1)
}

// WithLock 在剧本写锁保护下执行操作
func (lm *LockManager) WithLock(id string, fn func() error) error {
	info := lm.acquire(id)
	defer lm.release(info)

	info.mu.Lock()
	defer info.mu.Unlock()
	return fn()
}

// WithReadLock 在剧本读锁保护下执行操作
func (lm *LockManager) WithReadLock(id string, fn func() error) error {
	info := lm.acquire(id)
	defer lm.release(info)

	info.mu.RLock()
	defer info.mu.RUnlock()
	return fn()
}

// Len 当前持有的锁数量
func (lm *LockManager) Len() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.locks)
}

// StartCleanup 定期清理长时间未使用的锁，ctx 结束时停止
func (lm *LockManager) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				lm.cleanupUnusedLocks(time.Now())
			}
		}
	}()
}

// cleanupUnusedLocks 锁数量超过上限时移除空闲超时且无人使用的锁
func (lm *LockManager) cleanupUnusedLocks(now time.Time) int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	if len(lm.locks) <= lm.maxLocks {
		return 0
	}
	removed := 0
	for id, info := range lm.locks {
		idle := now.Sub(time.Unix(0, info.lastUsed.Load()))
		if info.refs.Load() == 0 && idle > lm.lockTTL {
			delete(lm.locks, id)
			removed++
		}
	}
	return removed
}
