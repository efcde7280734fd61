// internal/pkg/contracts/events.go
package contracts

// 订单服务与库存服务之间通过消息总线交换的事件契约。
// 没有 Schema Registry，两侧都必须对负载做防御性校验。

const (
	TopicOrderCreated = "order.created"
	TopicStockSuccess = "order.stock.success"
	TopicStockFailed  = "order.stock.failed"
)

// OrderItemDetail 是订单创建事件中的一个行项目。
type OrderItemDetail struct {
	BookID   uint64 `json:"book_id"`
	Quantity int    `json:"quantity"`
}

// OrderCreatedEvent 在订单及其行项目落库后发布，驱动库存预占。
type OrderCreatedEvent struct {
	OrderID      uint64            `json:"orderId"`
	OrderDetails []OrderItemDetail `json:"orderDetails"`
}

// StockSuccessEvent 表示一单的全部行项目扣减成功。
type StockSuccessEvent struct {
	OrderID uint64 `json:"orderId"`
}

// StockFailedEvent 表示预占失败，订单应转入失败状态。
type StockFailedEvent struct {
	OrderID uint64 `json:"orderId"`
	Reason  string `json:"reason"`
}
