// internal/service/order/domain/errors.go
package domain

import "errors"

var (
	// ErrValidation 表示请求在任何写入发生前就被同步拒绝。
	ErrValidation = errors.New("validation failed")

	// ErrOrderNotFound 表示订单 id 不存在。
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidTransition 表示从当前状态出发的转移不被允许。
	ErrInvalidTransition = errors.New("invalid order state transition")
)
