package database

import (
	"context"
	"fmt"
)

// =============================================================================
// 🔌 驱动抽象
// =============================================================================

// DriverPool 底层连接池（database/sql 或 pgxpool）
type DriverPool interface {
	// Acquire 取出一个连接，ctx 到期返回 context.DeadlineExceeded
	Acquire(ctx context.Context) (DriverConn, error)
	// TotalConns 当前已建立的连接数（含空闲）
	TotalConns() int
	// IdleConns 当前空闲连接数
	IdleConns() int
	// Close 关闭连接池并释放所有连接
	Close() error
}

// DriverConn 从 DriverPool 借出的单个连接
type DriverConn interface {
	// QueryScalar 执行返回单个整数的查询
	QueryScalar(ctx context.Context, query string) (int64, error)
	// Identity 标识底层物理连接，用于按连接统计使用次数；值必须可比较
	Identity() any
	// Release 归还连接
	Release()
	// Discard 销毁连接，不再放回池中
	Discard()
}

// DriverOpener 按配置创建 DriverPool
type DriverOpener func(ctx context.Context, cfg *PoolConfig) (DriverPool, error)

// OpenDriverPool 默认 DriverOpener，按 Target.Driver 选择实现
func OpenDriverPool(ctx context.Context, cfg *PoolConfig) (DriverPool, error) {
	switch cfg.Target().Driver {
	case DriverPgx:
		return openPgxDriverPool(ctx, cfg)
	case DriverPostgres, DriverMySQL, DriverSQLite, DriverSQLite3:
		return openSQLDriverPool(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Target().Driver)
	}
}
