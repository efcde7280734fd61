// internal/service/order/application/dto.go
package application

import (
	"time"

	"github.com/shopspring/decimal"

	"bookstore/internal/service/order/domain"
	"bookstore/internal/service/order/domain/port"
)

// CreateOrderRequest 是创建订单的入参 DTO。
type CreateOrderRequest struct {
	UserID           uint64              `json:"userId"`
	ShippingMethodID uint64              `json:"shippingMethodId"`
	Address          string              `json:"address"`
	PromoCode        string              `json:"promoCode,omitempty"`
	TotalAmount      decimal.Decimal     `json:"totalAmount"`
	ShippingFee      decimal.Decimal     `json:"shippingFee"`
	DiscountAmount   decimal.Decimal     `json:"discountAmount"`
	FinalAmount      decimal.Decimal     `json:"finalAmount"`
	PaymentMethod    string              `json:"paymentMethod"`
	Items            []CreateOrderItem   `json:"items"`
}

// CreateOrderItem 是创建订单请求中的一个行项目。
type CreateOrderItem struct {
	BookID    uint64          `json:"bookId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// AssignOrderRequest 是指派配送员的入参，三个字段均为必填。
type AssignOrderRequest struct {
	OrderID    uint64 `json:"orderId"`
	ShipperID  uint64 `json:"shipperId"`
	AssignerID uint64 `json:"assignerId"`
}

// CancelOrderResponse 是取消操作的统一出参。
type CancelOrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// OrderView 是订单的对外视图。
type OrderView struct {
	ID               uint64          `json:"id"`
	UserID           uint64          `json:"userId"`
	ShippingMethodID uint64          `json:"shippingMethodId"`
	Address          string          `json:"address"`
	PromoCode        string          `json:"promoCode,omitempty"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	ShippingFee      decimal.Decimal `json:"shippingFee"`
	DiscountAmount   decimal.Decimal `json:"discountAmount"`
	FinalAmount      decimal.Decimal `json:"finalAmount"`
	PaymentMethod    string          `json:"paymentMethod"`
	Status           string          `json:"status"`
	FailureReason    string          `json:"failureReason,omitempty"`
	Lines            []OrderLineView `json:"lines"`
	Assignment       *AssignmentView `json:"assignment,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// OrderLineView 是行项目视图，Book 字段由目录服务补充，可能为空。
type OrderLineView struct {
	BookID    uint64          `json:"bookId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Book      *port.BookInfo  `json:"book,omitempty"`
}

// AssignmentView 是指派记录视图。
type AssignmentView struct {
	ShipperID   uint64     `json:"shipperId"`
	AssignerID  uint64     `json:"assignerId"`
	AssignedAt  time.Time  `json:"assignedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func toOrderView(o *domain.Order, books map[uint64]port.BookInfo) *OrderView {
	view := &OrderView{
		ID:               o.ID,
		UserID:           o.UserID,
		ShippingMethodID: o.ShippingMethodID,
		Address:          o.Address,
		PromoCode:        o.PromoCode,
		TotalAmount:      o.TotalAmount,
		ShippingFee:      o.ShippingFee,
		DiscountAmount:   o.DiscountAmount,
		FinalAmount:      o.FinalAmount,
		PaymentMethod:    string(o.PaymentMethod),
		Status:           string(o.Status),
		FailureReason:    o.FailureReason,
		CreatedAt:        o.CreatedAt,
	}
	for _, l := range o.Lines {
		lv := OrderLineView{
			BookID:    l.BookID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
		if b, ok := books[l.BookID]; ok {
			book := b
			lv.Book = &book
		}
		view.Lines = append(view.Lines, lv)
	}
	if o.Assignment != nil {
		view.Assignment = &AssignmentView{
			ShipperID:   o.Assignment.ShipperID,
			AssignerID:  o.Assignment.AssignerID,
			AssignedAt:  o.Assignment.AssignedAt,
			CompletedAt: o.Assignment.CompletedAt,
		}
	}
	return view
}
