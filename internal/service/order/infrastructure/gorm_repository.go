// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bookstore/internal/pkg/contracts"
	"bookstore/internal/pkg/outbox"
	inventoryinfra "bookstore/internal/service/inventory/infrastructure"
	"bookstore/internal/service/order/domain"
)

// GormOrderRepository 是 OrderRepository 的 GORM 实现。
// 订单表与库存台账在同一个 MySQL 实例里（目录/库存子系统是单体），
// 取消时的回补因此可以和状态写入共享一个事务。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Create 在一个事务里写入订单、全部行项目和 order.created 的 outbox 记录。
// 事务提交即事实成立，事件由中继进程异步发布。
func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := toOrderModel(order)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return errors.Wrap(err, "insert order")
		}

		event := contracts.OrderCreatedEvent{OrderID: model.ID}
		for _, l := range model.Lines {
			event.OrderDetails = append(event.OrderDetails, contracts.OrderItemDetail{
				BookID:   l.BookID,
				Quantity: l.Quantity,
			})
		}
		return outbox.InsertTx(tx, contracts.TopicOrderCreated, event)
	})
	if err != nil {
		return err
	}

	// 回填数据库生成的主键
	order.ID = model.ID
	for i := range model.Lines {
		order.Lines[i].ID = model.Lines[i].ID
		order.Lines[i].OrderID = model.Lines[i].OrderID
	}
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Assignment").
		First(&model, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find order")
	}
	return toDomainOrder(&model), nil
}

// Update 持久化聚合当前的状态与指派记录。行项目落库后只读，不在此更新。
func (r *GormOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&OrderModel{}).
			Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"status":         string(order.Status),
				"failure_reason": order.FailureReason,
				"updated_at":     order.UpdatedAt,
			}).Error
		if err != nil {
			return errors.Wrap(err, "update order status")
		}

		if order.Assignment != nil {
			a := &OrderAssignmentModel{
				OrderID:     order.ID,
				AssignerID:  order.Assignment.AssignerID,
				ShipperID:   order.Assignment.ShipperID,
				AssignedAt:  order.Assignment.AssignedAt,
				CompletedAt: order.Assignment.CompletedAt,
			}
			// 重复指派按覆盖语义处理
			err = tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "order_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"assigner_id", "shipper_id", "assigned_at", "completed_at",
				}),
			}).Create(a).Error
			if err != nil {
				return errors.Wrap(err, "upsert order assignment")
			}
		}
		return nil
	})
}

// TransitionFromPending 是事件消费端的受保护状态写入：
// 只有仍处于 PENDING 的订单会被更新，重复投递自然落空。
func (r *GormOrderRepository) TransitionFromPending(ctx context.Context, id uint64, to domain.Status, reason string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("id = ? AND status = ?", id, string(domain.StatusPending)).
		Updates(map[string]interface{}{
			"status":         string(to),
			"failure_reason": reason,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "transition from pending")
	}
	return result.RowsAffected > 0, nil
}

// Cancel 在一个事务里执行取消：锁订单行、按聚合的决策回补库存、写入状态。
// 回补按 book id 的固定顺序加行锁，与预占侧的加锁顺序一致。
func (r *GormOrderRepository) Cancel(ctx context.Context, id uint64) (domain.CancelDecision, error) {
	var decision domain.CancelDecision
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model OrderModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrOrderNotFound
		}
		if err != nil {
			return errors.Wrap(err, "lock order row")
		}
		if err := tx.Where("order_id = ?", id).Find(&model.Lines).Error; err != nil {
			return errors.Wrap(err, "load order lines")
		}

		order := toDomainOrder(&model)
		decision = order.Cancel()
		if !decision.Changed {
			return nil
		}

		if decision.Restock {
			lines := append([]domain.OrderLine(nil), order.Lines...)
			sort.Slice(lines, func(i, j int) bool { return lines[i].BookID < lines[j].BookID })
			for _, l := range lines {
				if err := inventoryinfra.RestockTx(tx, l.BookID, l.Quantity); err != nil {
					return err
				}
			}
		}

		err = tx.Model(&OrderModel{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":     string(domain.StatusCancelled),
				"updated_at": order.UpdatedAt,
			}).Error
		return errors.Wrap(err, "update order to cancelled")
	})
	if err != nil {
		return domain.CancelDecision{}, err
	}
	return decision, nil
}
