// internal/service/inventory/domain/stock.go
package domain

import (
	"errors"
	"fmt"
	"time"
)

// StockEntry 是一个图书条目的权威可用库存记录。
// 数量不允许为负；所有变更都必须在持有排他行锁的事务里进行。
type StockEntry struct {
	BookID   uint64
	Quantity int
}

// ReservationItem 是一次预占中的一个行项目。
type ReservationItem struct {
	BookID   uint64
	Quantity int
}

// Outcome 是一次预占的最终结果，同时充当幂等台账的内容：
// 同一订单的重复投递直接复用首次的结果。
type Outcome struct {
	OrderID     uint64
	Success     bool
	Reason      string
	ProcessedAt time.Time
}

var (
	// ErrBookNotFound 表示事件引用的图书条目不存在，整单预占失败。
	ErrBookNotFound = errors.New("book not found")

	// ErrAlreadyProcessed 表示该订单已有台账记录，本次是重复投递。
	ErrAlreadyProcessed = errors.New("order already processed")
)

// InsufficientStockError 指名导致整单失败的那本书。
type InsufficientStockError struct {
	BookID    uint64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for book %d: requested %d, available %d",
		e.BookID, e.Requested, e.Available)
}
