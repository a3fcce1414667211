package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🔄 事务管理
// =============================================================================

// TransactionFunc 事务函数类型
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction 借出一个连接，在其上执行事务，结束后归还
func (m *PoolManager) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	return m.WithConn(ctx, func(lease *Lease) error {
		db, err := lease.Gorm(ctx)
		if err != nil {
			return err
		}
		return db.Transaction(fn)
	})
}

// 事务重试退避参数
const (
	txRetryInitialBackoff = 100 * time.Millisecond
	txRetryMaxBackoff     = 5 * time.Second
)

// WithTransactionRetry 执行事务，遇到死锁、序列化失败、连接中断等可重试错误时
// 按指数退避重新借出连接重试，最多 maxRetries 次
func (m *PoolManager) WithTransactionRetry(ctx context.Context, maxRetries int, fn TransactionFunc) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = txRetryInitialBackoff
	b.MaxInterval = txRetryMaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0

	attempt := 0
	_, err := backoff.Retry(ctx,
		func() (struct{}, error) {
			attempt++
			err := m.WithTransaction(ctx, fn)
			if err != nil && !isRetryableError(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.logger.Warn("transaction failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries),
				zap.Duration("next_retry_in", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil && isRetryableError(err) {
		return fmt.Errorf("transaction failed after %d attempts: %w", attempt, err)
	}
	return err
}

// isRetryableError 判断错误是否可重试
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// 连接池本身的错误：只有获取超时值得重试
	var poolErr *Error
	if errors.As(err, &poolErr) {
		return poolErr.Code == CodeAcquireTimeout
	}

	errMsg := strings.ToLower(err.Error())

	// 死锁
	if strings.Contains(errMsg, "deadlock") {
		return true
	}

	// 序列化失败（PostgreSQL SQLSTATE 40001）
	if strings.Contains(errMsg, "serialization failure") || strings.Contains(errMsg, "40001") {
		return true
	}

	// 连接相关错误
	if strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "broken pipe") {
		return true
	}

	// 锁超时
	if strings.Contains(errMsg, "lock timeout") || strings.Contains(errMsg, "lock wait timeout") {
		return true
	}

	// driver: bad connection（Go database/sql 标准错误）
	return strings.Contains(errMsg, "bad connection")
}
