package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// =============================================================================
// 🗄️ database/sql 驱动池
// =============================================================================

// sqlRefillInterval 检查连接数是否低于 min_size 的周期
const sqlRefillInterval = time.Second

// SQLDriverPool 基于 *sql.DB 的 DriverPool，经由 GORM 方言建立。
// database/sql 没有最小连接数，空闲回收与生命周期到期后由补充协程补足 min_size。
type SQLDriverPool struct {
	db    *gorm.DB
	sqlDB *sql.DB

	minSize       int
	refillTimeout time.Duration
	refills       atomic.Int64

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// openSQLDriverPool 通过 GORM 方言打开连接池
func openSQLDriverPool(ctx context.Context, cfg *PoolConfig) (DriverPool, error) {
	dialector, err := dialectorFor(cfg.Target())
	if err != nil {
		return nil, err
	}

	// 连通性由初始化阶段的校验负责，这里不额外 ping
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:               gormlogger.Default.LogMode(gormlogger.Silent),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Target(), err)
	}

	pool, err := NewSQLDriverPool(db, cfg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return pool, nil
}

func dialectorFor(target Target) (gorm.Dialector, error) {
	switch target.Driver {
	case DriverPostgres:
		return postgres.Open(target.DSN), nil
	case DriverMySQL:
		return mysql.Open(target.DSN), nil
	case DriverSQLite:
		return sqlite.Open(target.DSN), nil
	case DriverSQLite3:
		return gormsqlite.Open(target.DSN), nil
	default:
		return nil, fmt.Errorf("driver %q is not served by database/sql", target.Driver)
	}
}

// NewSQLDriverPool 包装已打开的 GORM 实例，并按配置设置连接池上限与回收策略
func NewSQLDriverPool(db *gorm.DB, cfg *PoolConfig) (*SQLDriverPool, error) {
	return newSQLDriverPool(db, cfg, sqlRefillInterval)
}

func newSQLDriverPool(db *gorm.DB, cfg *PoolConfig, refillEvery time.Duration) (*SQLDriverPool, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 空闲上限与最大连接数一致，避免归还时立即关闭
	sqlDB.SetMaxOpenConns(cfg.MaxSize())
	sqlDB.SetMaxIdleConns(cfg.MaxSize())
	sqlDB.SetConnMaxIdleTime(cfg.MaxIdleTime())
	sqlDB.SetConnMaxLifetime(cfg.MaxConnectionLifetime())

	ctx, cancel := context.WithCancel(context.Background())
	p := &SQLDriverPool{
		db:            db,
		sqlDB:         sqlDB,
		minSize:       cfg.MinSize(),
		refillTimeout: cfg.AcquireTimeout(),
		cancel:        cancel,
	}
	if p.minSize > 0 && refillEvery > 0 {
		p.wg.Add(1)
		go p.refillLoop(ctx, refillEvery)
	}
	return p, nil
}

func (p *SQLDriverPool) refillLoop(ctx context.Context, every time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refill(ctx)
		}
	}
}

// refill 同时持有 min_size - InUse 个连接，迫使 database/sql 新建不足的部分，
// 随后全部归还为空闲连接
func (p *SQLDriverPool) refill(ctx context.Context) {
	stats := p.sqlDB.Stats()
	if stats.OpenConnections >= p.minSize {
		return
	}
	need := p.minSize - stats.InUse
	if need <= 0 {
		return
	}

	rctx, cancel := context.WithTimeout(ctx, p.refillTimeout)
	defer cancel()

	held := make([]*sql.Conn, 0, need)
	for range need {
		conn, err := p.sqlDB.Conn(rctx)
		if err != nil {
			break
		}
		held = append(held, conn)
	}
	for _, conn := range held {
		_ = conn.Close()
	}
	if len(held) > 0 {
		p.refills.Add(1)
	}
}

// Acquire implements DriverPool.
func (p *SQLDriverPool) Acquire(ctx context.Context) (DriverConn, error) {
	conn, err := p.sqlDB.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlDriverConn{conn: conn, db: p.db}, nil
}

// TotalConns implements DriverPool.
func (p *SQLDriverPool) TotalConns() int {
	return p.sqlDB.Stats().OpenConnections
}

// IdleConns implements DriverPool.
func (p *SQLDriverPool) IdleConns() int {
	return p.sqlDB.Stats().Idle
}

// Close implements DriverPool. 先停止补充协程再关闭 *sql.DB，可重复调用
func (p *SQLDriverPool) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.closeErr = p.sqlDB.Close()
	})
	return p.closeErr
}

// DB 返回底层 GORM 实例
func (p *SQLDriverPool) DB() *gorm.DB {
	return p.db
}

// sqlDriverConn 借出的 *sql.Conn
type sqlDriverConn struct {
	conn *sql.Conn
	db   *gorm.DB
}

func (c *sqlDriverConn) QueryScalar(ctx context.Context, query string) (int64, error) {
	var v int64
	if err := c.conn.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (c *sqlDriverConn) Identity() any {
	var id any
	_ = c.conn.Raw(func(driverConn any) error {
		id = driverConn
		return nil
	})
	return id
}

func (c *sqlDriverConn) Release() {
	_ = c.conn.Close()
}

// Discard 在 Raw 中返回 driver.ErrBadConn，database/sql 会销毁该物理连接
func (c *sqlDriverConn) Discard() {
	_ = c.conn.Raw(func(any) error {
		return driver.ErrBadConn
	})
	// Raw 已将连接标记为关闭，这里的 Close 只会返回 sql.ErrConnDone
	_ = c.conn.Close()
}

// session 将 GORM 会话绑定到当前连接
func (c *sqlDriverConn) session(ctx context.Context) *gorm.DB {
	tx := c.db.WithContext(ctx)
	tx.Statement.ConnPool = c.conn
	return tx
}
