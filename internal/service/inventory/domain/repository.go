// internal/service/inventory/domain/repository.go
package domain

import "context"

// StockRepository 是库存台账的持久化接口，由 GORM 实现提供。
type StockRepository interface {
	// ReserveAll 在一个事务里处理一单的全部行项目：
	// 按传入顺序对每个 StockEntry 加排他行锁，任何一行不存在或
	// 数量不足则整个事务回滚（不发生部分扣减），全部通过才逐行扣减。
	// 成功路径会在同一事务里写入幂等台账；订单已有台账时返回
	// ErrAlreadyProcessed。业务失败返回 ErrBookNotFound 或
	// *InsufficientStockError。
	ReserveAll(ctx context.Context, orderID uint64, items []ReservationItem) error

	// RecordFailure 在独立事务里记录一次失败结果。
	// 失败路径没有库存写入需要保护，但台账仍要落库，
	// 以便重复投递时直接复用该结果。
	RecordFailure(ctx context.Context, orderID uint64, reason string) error

	// Lookup 查询订单的台账记录，不存在时返回 nil。
	Lookup(ctx context.Context, orderID uint64) (*Outcome, error)

	// FindEntry 读取单个库存条目（不加锁），供查询接口使用。
	FindEntry(ctx context.Context, bookID uint64) (*StockEntry, error)
}
