package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// validationQuery 连接校验语句
const validationQuery = "SELECT 1"

// ValidateConnection 在 commandTimeout 内执行 SELECT 1，结果必须为 1。
// 失败时返回 CodeValidation 错误，Reason 区分超时、结果不符与传输错误。
func ValidateConnection(ctx context.Context, conn DriverConn, commandTimeout time.Duration) error {
	qctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	v, err := conn.QueryScalar(qctx, validationQuery)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(qctx.Err(), context.DeadlineExceeded) {
			return newValidationError(ReasonTimeout,
				fmt.Sprintf("validation query did not complete within %s", commandTimeout), err)
		}
		return newValidationError(ReasonTransport, "validation query failed", err)
	}
	if v != 1 {
		return newValidationError(ReasonUnexpectedResult,
			fmt.Sprintf("validation query returned %d, expected 1", v), nil)
	}
	return nil
}
