// internal/service/order/domain/repository.go
package domain

import "context"

// OrderRepository 定义了订单聚合的持久化接口。
// 它位于领域层，由基础设施层的 GORM 实现提供。
type OrderRepository interface {
	// Create 在一个事务里写入订单、全部行项目以及 order.created 的 outbox 记录。
	Create(ctx context.Context, order *Order) error

	// FindByID 加载订单及其行项目和指派记录。
	FindByID(ctx context.Context, id uint64) (*Order, error)

	// Update 持久化聚合当前的状态、失败原因与指派记录。
	Update(ctx context.Context, order *Order) error

	// TransitionFromPending 以 PENDING 为前置条件做一次受保护的状态写入，
	// 返回是否真的发生了转移。订单已离开 PENDING 时返回 false ——
	// 这让重复投递的库存事件天然幂等。
	TransitionFromPending(ctx context.Context, id uint64, to Status, reason string) (bool, error)

	// Cancel 在一个事务里执行取消：按 Order.Cancel 的决策回补库存
	// （逐行对 StockEntry 加排他行锁递增），再写入 CANCELLED 状态。
	Cancel(ctx context.Context, id uint64) (CancelDecision, error)
}
