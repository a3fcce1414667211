package database

import (
	"context"
	"database/sql"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🔑 连接租约
// =============================================================================

// Lease 调用方持有的一个连接，必须调用 Release 归还
type Lease struct {
	id         string
	conn       DriverConn
	acquiredAt time.Time
	stack      []byte
	manager    *PoolManager
	once       sync.Once

	// 泄漏阈值，0 表示不检测
	leakThreshold time.Duration

	// 由 manager.mu 保护
	leakReported bool
}

// ID 租约唯一标识
func (l *Lease) ID() string {
	return l.id
}

// AcquiredAt 租约获取时间
func (l *Lease) AcquiredAt() time.Time {
	return l.acquiredAt
}

// Conn 返回底层驱动连接
func (l *Lease) Conn() DriverConn {
	return l.conn
}

// SQLConn 返回 database/sql 连接，非 database/sql 驱动时第二个返回值为 false
func (l *Lease) SQLConn() (*sql.Conn, bool) {
	c, ok := l.conn.(*sqlDriverConn)
	if !ok {
		return nil, false
	}
	return c.conn, true
}

// PgxConn 返回 pgxpool 连接，非 pgx 驱动时第二个返回值为 false
func (l *Lease) PgxConn() (*pgxpool.Conn, bool) {
	c, ok := l.conn.(*pgxDriverConn)
	if !ok {
		return nil, false
	}
	return c.conn, true
}

// Gorm 返回绑定到当前连接的 GORM 会话，仅 database/sql 驱动可用
func (l *Lease) Gorm(ctx context.Context) (*gorm.DB, error) {
	c, ok := l.conn.(*sqlDriverConn)
	if !ok || c.db == nil {
		return nil, fmt.Errorf("lease %s: gorm session requires a database/sql driver", l.id)
	}
	return c.session(ctx), nil
}

// Release 归还连接，可重复调用
func (l *Lease) Release() {
	l.once.Do(func() {
		l.manager.release(l)
	})
}

// =============================================================================
// 🕵️ 泄漏检测
// =============================================================================

// captureStack 泄漏检测开启时记录获取连接的调用栈
func captureStack(cfg *PoolConfig) []byte {
	if !cfg.LeakDetectionActive() {
		return nil
	}
	return debug.Stack()
}

// leakThreshold 泄漏检测关闭时返回 0
func leakThreshold(cfg *PoolConfig) time.Duration {
	if !cfg.LeakDetectionActive() {
		return 0
	}
	return cfg.LeakDetectionTimeout()
}

func (l *Lease) heldTooLong(now time.Time) bool {
	return l.leakThreshold > 0 && now.Sub(l.acquiredAt) > l.leakThreshold
}

// leakedLocked 统计持有超时的租约；markReported 为 true 时返回首次发现的租约并标记。
// 调用方需持有 m.mu（markReported 时需写锁）。
func (m *PoolManager) leakedLocked(now time.Time, markReported bool) (int, []*Lease) {
	var (
		count    int
		newLeaks []*Lease
	)
	for _, l := range m.leases {
		if !l.heldTooLong(now) {
			continue
		}
		count++
		if markReported && !l.leakReported {
			l.leakReported = true
			newLeaks = append(newLeaks, l)
		}
	}
	return count, newLeaks
}

func (m *PoolManager) reportLeak(now time.Time, l *Lease) {
	m.logger.Warn("possible connection leak detected",
		zap.String("lease_id", l.id),
		zap.Duration("held_for", now.Sub(l.acquiredAt)),
		zap.Duration("threshold", l.leakThreshold),
		zap.ByteString("acquired_at_stack", l.stack),
	)
}
