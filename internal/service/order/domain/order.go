// internal/service/order/domain/order.go
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod 是下单时选择的支付方式
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentOnline
}

// Order 是订单聚合的根实体。状态只能通过下面定义的转移方法变更，
// 订单一旦创建不会被物理删除。
type Order struct {
	ID               uint64
	UserID           uint64
	ShippingMethodID uint64
	Address          string
	PromoCode        string // 自由文本，不是外键

	TotalAmount    decimal.Decimal
	ShippingFee    decimal.Decimal
	DiscountAmount decimal.Decimal
	// FinalAmount = TotalAmount + ShippingFee - DiscountAmount
	// 该不变式由调用方保证，核心不重新计算
	FinalAmount decimal.Decimal

	PaymentMethod PaymentMethod
	Status        Status
	FailureReason string

	Lines      []OrderLine
	Assignment *Assignment

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderLine 是订单的一个行项目，单价是下单时的快照，落库后只读。
type OrderLine struct {
	ID        uint64
	OrderID   uint64
	BookID    uint64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Assignment 记录订单与配送员的指派关系，订单进入 DELIVERING 后一对一存在。
type Assignment struct {
	ID          uint64
	OrderID     uint64
	AssignerID  uint64 // 执行指派的操作员
	ShipperID   uint64 // 被指派的配送员
	AssignedAt  time.Time
	CompletedAt *time.Time
}

// CreateOrderInput 聚合了创建订单所需的全部字段。
type CreateOrderInput struct {
	UserID           uint64
	ShippingMethodID uint64
	Address          string
	PromoCode        string
	TotalAmount      decimal.Decimal
	ShippingFee      decimal.Decimal
	DiscountAmount   decimal.Decimal
	FinalAmount      decimal.Decimal
	PaymentMethod    PaymentMethod
	Lines            []LineInput
}

// LineInput 是创建订单时的一个行项目。
type LineInput struct {
	BookID    uint64
	Quantity  int
	UnitPrice decimal.Decimal
}

// NewOrder 校验输入并构造一个处于 PENDING 状态的订单实体。
// 所有校验错误都包装 ErrValidation，接口层据此返回 4xx。
func NewOrder(in CreateOrderInput) (*Order, error) {
	if in.UserID == 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if in.ShippingMethodID == 0 {
		return nil, fmt.Errorf("%w: shipping method is required", ErrValidation)
	}
	if !in.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: payment method must be cash or online", ErrValidation)
	}
	if len(in.Lines) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one line item", ErrValidation)
	}
	for _, l := range in.Lines {
		if l.BookID == 0 {
			return nil, fmt.Errorf("%w: line item book id is required", ErrValidation)
		}
		if l.Quantity < 1 {
			return nil, fmt.Errorf("%w: line item quantity must be at least 1", ErrValidation)
		}
		if l.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: line item unit price must not be negative", ErrValidation)
		}
	}
	for _, amount := range []decimal.Decimal{in.TotalAmount, in.ShippingFee, in.DiscountAmount, in.FinalAmount} {
		if amount.IsNegative() {
			return nil, fmt.Errorf("%w: monetary amounts must not be negative", ErrValidation)
		}
	}

	now := time.Now()
	order := &Order{
		UserID:           in.UserID,
		ShippingMethodID: in.ShippingMethodID,
		Address:          in.Address,
		PromoCode:        in.PromoCode,
		TotalAmount:      in.TotalAmount,
		ShippingFee:      in.ShippingFee,
		DiscountAmount:   in.DiscountAmount,
		FinalAmount:      in.FinalAmount,
		PaymentMethod:    in.PaymentMethod,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, l := range in.Lines {
		order.Lines = append(order.Lines, OrderLine{
			BookID:    l.BookID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return order, nil
}

// MarkConfirmed 处理库存预占成功事件：PENDING -> CONFIRMED。
// 订单已不在 PENDING 时（已推进或已取消）为幂等空操作，返回 false。
func (o *Order) MarkConfirmed() bool {
	if o.Status != StatusPending {
		return false
	}
	o.Status = StatusConfirmed
	o.UpdatedAt = time.Now()
	return true
}

// MarkStockFailed 处理库存预占失败事件：PENDING -> STOCK_FAILED，记录失败原因。
// 同样只在 PENDING 时生效。
func (o *Order) MarkStockFailed(reason string) bool {
	if o.Status != StatusPending {
		return false
	}
	o.Status = StatusStockFailed
	o.FailureReason = reason
	o.UpdatedAt = time.Now()
	return true
}

// Confirm 是人工/管理端确认，不触碰库存，与事件驱动的 MarkConfirmed
// 是两条独立的路径。只允许从 PENDING 和 STOCK_FAILED 进入 CONFIRMED；
// 终态订单不可复活（已取消订单若被确认后再次取消会二次回补库存），
// DELIVERING 不允许回退。已是 CONFIRMED 时为幂等空操作。
func (o *Order) Confirm() error {
	switch o.Status {
	case StatusConfirmed:
		return nil
	case StatusPending, StatusStockFailed:
		o.Status = StatusConfirmed
		o.FailureReason = ""
		o.UpdatedAt = time.Now()
		return nil
	default:
		return fmt.Errorf("%w: cannot confirm order in status %s", ErrInvalidTransition, o.Status)
	}
}

// Complete 将订单置为 DELIVERED；如存在指派记录则盖上完成时间戳。
// 已取消的订单不接受任何后续转移。
func (o *Order) Complete(now time.Time) error {
	if o.Status == StatusCancelled {
		return fmt.Errorf("%w: cannot complete a cancelled order", ErrInvalidTransition)
	}
	if o.Status == StatusDelivered {
		return nil
	}
	o.Status = StatusDelivered
	if o.Assignment != nil && o.Assignment.CompletedAt == nil {
		o.Assignment.CompletedAt = &now
	}
	o.UpdatedAt = now
	return nil
}

// Assign 将订单指派给配送员：置为 DELIVERING 并建立指派记录。
// 重复指派按覆盖语义处理。
func (o *Order) Assign(shipperID, assignerID uint64, now time.Time) error {
	if shipperID == 0 {
		return fmt.Errorf("%w: shipper id is required", ErrValidation)
	}
	if assignerID == 0 {
		return fmt.Errorf("%w: assigner id is required", ErrValidation)
	}
	if o.Status == StatusCancelled || o.Status == StatusDelivered {
		return fmt.Errorf("%w: cannot assign order in status %s", ErrInvalidTransition, o.Status)
	}
	o.Status = StatusDelivering
	o.Assignment = &Assignment{
		OrderID:    o.ID,
		AssignerID: assignerID,
		ShipperID:  shipperID,
		AssignedAt: now,
	}
	o.UpdatedAt = now
	return nil
}

// CancelDecision 描述一次取消操作应产生的副作用。
type CancelDecision struct {
	// Changed 为 false 表示订单已处于 CANCELLED，本次调用是幂等空操作。
	Changed bool
	// Restock 为 true 表示需要按行项目数量回补库存。
	// 已送达的订单取消时货物已出库，不回补。
	Restock bool
}

// Cancel 对订单执行取消转移并返回副作用决策。
// 回补动作和状态写入必须由仓储层放在同一个事务里执行。
func (o *Order) Cancel() CancelDecision {
	switch o.Status {
	case StatusCancelled:
		return CancelDecision{}
	case StatusDelivered:
		o.Status = StatusCancelled
		o.UpdatedAt = time.Now()
		return CancelDecision{Changed: true}
	default:
		// PENDING / CONFIRMED / DELIVERING / STOCK_FAILED 都回补库存
		o.Status = StatusCancelled
		o.UpdatedAt = time.Now()
		return CancelDecision{Changed: true, Restock: true}
	}
}
