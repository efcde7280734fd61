// internal/service/order/domain/state.go
package domain

// Status 定义了订单的生命周期状态
type Status string

const (
	StatusPending     Status = "PENDING"      // 已创建，等待库存预占结果
	StatusConfirmed   Status = "CONFIRMED"    // 库存预占成功或人工确认
	StatusDelivering  Status = "DELIVERING"   // 已指派配送员，配送中
	StatusDelivered   Status = "DELIVERED"    // 已送达 (终态)
	StatusCancelled   Status = "CANCELLED"    // 已取消 (终态)
	StatusStockFailed Status = "STOCK_FAILED" // 库存预占失败
)

// Terminal 报告该状态是否为终态。
// 取消是唯一允许离开 DELIVERED 的转移（不回补库存），见 Order.Cancel。
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Valid 报告该值是否为已知状态。
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusDelivering,
		StatusDelivered, StatusCancelled, StatusStockFailed:
		return true
	}
	return false
}
