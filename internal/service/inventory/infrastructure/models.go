// internal/service/inventory/infrastructure/models.go
package infrastructure

import (
	"time"
)

// StockModel 对应 book_stocks 表：每个图书条目一行权威库存。
type StockModel struct {
	BookID    uint64 `gorm:"primaryKey;autoIncrement:false"`
	Quantity  int    `gorm:"not null"`
	UpdatedAt time.Time
}

func (StockModel) TableName() string {
	return "book_stocks"
}

// ReservationLedgerModel 对应 reservation_ledger 表：
// 每个订单至多一行，主键冲突即为重复投递。
type ReservationLedgerModel struct {
	OrderID     uint64 `gorm:"primaryKey;autoIncrement:false"`
	Success     bool   `gorm:"not null"`
	Reason      string `gorm:"size:512"`
	ProcessedAt time.Time
}

func (ReservationLedgerModel) TableName() string {
	return "reservation_ledger"
}
