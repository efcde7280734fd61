// internal/service/order/infrastructure/models.go
package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"

	"bookstore/internal/service/order/domain"
)

// OrderModel 对应 orders 表
type OrderModel struct {
	ID               uint64 `gorm:"primaryKey"`
	UserID           uint64 `gorm:"index;not null"`
	ShippingMethodID uint64 `gorm:"not null"`
	Address          string `gorm:"size:512"`
	PromoCode        string `gorm:"size:64"`

	TotalAmount    decimal.Decimal `gorm:"type:decimal(10,2)"`
	ShippingFee    decimal.Decimal `gorm:"type:decimal(10,2)"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(10,2)"`
	FinalAmount    decimal.Decimal `gorm:"type:decimal(10,2)"`

	PaymentMethod string `gorm:"size:16"`
	Status        string `gorm:"size:32;index"`
	FailureReason string `gorm:"size:512"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Lines      []OrderLineModel      `gorm:"foreignKey:OrderID"`
	Assignment *OrderAssignmentModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string {
	return "orders"
}

// OrderLineModel 对应 order_lines 表，单价是下单时的快照
type OrderLineModel struct {
	ID        uint64          `gorm:"primaryKey"`
	OrderID   uint64          `gorm:"index;not null"`
	BookID    uint64          `gorm:"not null"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2)"`
}

func (OrderLineModel) TableName() string {
	return "order_lines"
}

// OrderAssignmentModel 对应 order_assignments 表，每单至多一行
type OrderAssignmentModel struct {
	ID          uint64 `gorm:"primaryKey"`
	OrderID     uint64 `gorm:"uniqueIndex;not null"`
	AssignerID  uint64 `gorm:"not null"`
	ShipperID   uint64 `gorm:"not null"`
	AssignedAt  time.Time
	CompletedAt *time.Time
}

func (OrderAssignmentModel) TableName() string {
	return "order_assignments"
}

// --- 领域模型与数据库模型的转换 ---

func toOrderModel(o *domain.Order) *OrderModel {
	m := &OrderModel{
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
		UpdatedAt:        o.UpdatedAt,
	}
	for _, l := range o.Lines {
		m.Lines = append(m.Lines, OrderLineModel{
			ID:        l.ID,
			OrderID:   l.OrderID,
			BookID:    l.BookID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return m
}

func toDomainOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:               m.ID,
		UserID:           m.UserID,
		ShippingMethodID: m.ShippingMethodID,
		Address:          m.Address,
		PromoCode:        m.PromoCode,
		TotalAmount:      m.TotalAmount,
		ShippingFee:      m.ShippingFee,
		DiscountAmount:   m.DiscountAmount,
		FinalAmount:      m.FinalAmount,
		PaymentMethod:    domain.PaymentMethod(m.PaymentMethod),
		Status:           domain.Status(m.Status),
		FailureReason:    m.FailureReason,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	for _, l := range m.Lines {
		o.Lines = append(o.Lines, domain.OrderLine{
			ID:        l.ID,
			OrderID:   l.OrderID,
			BookID:    l.BookID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	if m.Assignment != nil {
		o.Assignment = &domain.Assignment{
			ID:          m.Assignment.ID,
			OrderID:     m.Assignment.OrderID,
			AssignerID:  m.Assignment.AssignerID,
			ShipperID:   m.Assignment.ShipperID,
			AssignedAt:  m.Assignment.AssignedAt,
			CompletedAt: m.Assignment.CompletedAt,
		}
	}
	return o
}
