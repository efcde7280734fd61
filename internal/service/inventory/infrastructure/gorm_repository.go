// internal/service/inventory/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bookstore/internal/service/inventory/domain"
)

const mysqlDuplicateEntry = 1062

// GormStockRepository 是 StockRepository 的 GORM 实现。
type GormStockRepository struct {
	db *gorm.DB
}

func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// ReserveAll 在一个事务里完成一单的校验与扣减。
// 台账先行写入：主键冲突说明另一次投递已经处理过该订单。
// 任何业务失败都让整个事务回滚，台账行随之消失，
// 失败结果由 RecordFailure 在独立事务里补记。
func (r *GormStockRepository) ReserveAll(ctx context.Context, orderID uint64, items []domain.ReservationItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := &ReservationLedgerModel{
			OrderID:     orderID,
			Success:     true,
			ProcessedAt: time.Now(),
		}
		if err := tx.Create(ledger).Error; err != nil {
			if isDuplicateKey(err) {
				return domain.ErrAlreadyProcessed
			}
			return errors.Wrap(err, "insert reservation ledger")
		}

		// 先整单校验：调用方已按 book id 排序，锁获取顺序全局一致
		for _, item := range items {
			var stock StockModel
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("book_id = ?", item.BookID).
				First(&stock).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: book %d", domain.ErrBookNotFound, item.BookID)
			}
			if err != nil {
				return errors.Wrapf(err, "lock stock entry for book %d", item.BookID)
			}
			if stock.Quantity < item.Quantity {
				return &domain.InsufficientStockError{
					BookID:    item.BookID,
					Available: stock.Quantity,
					Requested: item.Quantity,
				}
			}
		}

		// 全部通过，逐行扣减；行锁持有到事务提交
		for _, item := range items {
			err := tx.Model(&StockModel{}).
				Where("book_id = ?", item.BookID).
				Update("quantity", gorm.Expr("quantity - ?", item.Quantity)).Error
			if err != nil {
				return errors.Wrapf(err, "decrement stock for book %d", item.BookID)
			}
		}
		return nil
	})
}

// RecordFailure 落库一次失败结果。重复写入是幂等的。
func (r *GormStockRepository) RecordFailure(ctx context.Context, orderID uint64, reason string) error {
	ledger := &ReservationLedgerModel{
		OrderID:     orderID,
		Success:     false,
		Reason:      reason,
		ProcessedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(ledger).Error; err != nil {
		if isDuplicateKey(err) {
			return nil
		}
		return errors.Wrap(err, "insert failure ledger")
	}
	return nil
}

func (r *GormStockRepository) Lookup(ctx context.Context, orderID uint64) (*domain.Outcome, error) {
	var model ReservationLedgerModel
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup reservation ledger")
	}
	return &domain.Outcome{
		OrderID:     model.OrderID,
		Success:     model.Success,
		Reason:      model.Reason,
		ProcessedAt: model.ProcessedAt,
	}, nil
}

func (r *GormStockRepository) FindEntry(ctx context.Context, bookID uint64) (*domain.StockEntry, error) {
	var model StockModel
	err := r.db.WithContext(ctx).Where("book_id = ?", bookID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: book %d", domain.ErrBookNotFound, bookID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "find stock entry")
	}
	return &domain.StockEntry{BookID: model.BookID, Quantity: model.Quantity}, nil
}

// RestockTx 在调用方的事务里为一本书回补数量，持有排他行锁。
// 订单服务取消订单时通过它回补库存，使回补与状态写入共享一个事务。
func RestockTx(tx *gorm.DB, bookID uint64, quantity int) error {
	var stock StockModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("book_id = ?", bookID).
		First(&stock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: book %d", domain.ErrBookNotFound, bookID)
	}
	if err != nil {
		return errors.Wrapf(err, "lock stock entry for book %d", bookID)
	}
	err = tx.Model(&StockModel{}).
		Where("book_id = ?", bookID).
		Update("quantity", gorm.Expr("quantity + ?", quantity)).Error
	return errors.Wrapf(err, "restock book %d", bookID)
}
