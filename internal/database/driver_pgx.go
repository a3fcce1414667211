package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// =============================================================================
// 🐘 pgxpool 驱动池
// =============================================================================

// discardTimeout 销毁连接时关闭网络连接的超时
const discardTimeout = 5 * time.Second

// PgxDriverPool 基于 pgxpool 的 DriverPool
type PgxDriverPool struct {
	pool *pgxpool.Pool
}

func openPgxDriverPool(ctx context.Context, cfg *PoolConfig) (DriverPool, error) {
	pc, err := pgxpool.ParseConfig(cfg.Target().DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", cfg.Target(), err)
	}

	pc.MaxConns = int32(cfg.MaxSize())
	pc.MinConns = int32(cfg.MinSize())
	pc.MaxConnIdleTime = cfg.MaxIdleTime()
	pc.MaxConnLifetime = cfg.MaxConnectionLifetime()
	// 服务端语句超时与 command_timeout 一致
	pc.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.CommandTimeout().Milliseconds(), 10)

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool for %s: %w", cfg.Target(), err)
	}
	return &PgxDriverPool{pool: pool}, nil
}

// NewPgxDriverPool 包装已创建的 pgxpool
func NewPgxDriverPool(pool *pgxpool.Pool) *PgxDriverPool {
	return &PgxDriverPool{pool: pool}
}

// Acquire implements DriverPool.
func (p *PgxDriverPool) Acquire(ctx context.Context) (DriverConn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxDriverConn{conn: conn}, nil
}

// TotalConns implements DriverPool.
func (p *PgxDriverPool) TotalConns() int {
	return int(p.pool.Stat().TotalConns())
}

// IdleConns implements DriverPool.
func (p *PgxDriverPool) IdleConns() int {
	return int(p.pool.Stat().IdleConns())
}

// Close 会阻塞到所有借出的连接归还，调用方需自行控制超时
func (p *PgxDriverPool) Close() error {
	p.pool.Close()
	return nil
}

// Pool 返回底层 pgxpool
func (p *PgxDriverPool) Pool() *pgxpool.Pool {
	return p.pool
}

type pgxDriverConn struct {
	conn *pgxpool.Conn
}

func (c *pgxDriverConn) QueryScalar(ctx context.Context, query string) (int64, error) {
	var v int64
	if err := c.conn.QueryRow(ctx, query).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (c *pgxDriverConn) Identity() any {
	return c.conn.Conn()
}

func (c *pgxDriverConn) Release() {
	c.conn.Release()
}

// Discard 从池中摘除连接后关闭
func (c *pgxDriverConn) Discard() {
	conn := c.conn.Hijack()
	ctx, cancel := context.WithTimeout(context.Background(), discardTimeout)
	defer cancel()
	_ = conn.Close(ctx)
}
