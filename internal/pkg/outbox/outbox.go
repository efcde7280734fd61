// internal/pkg/outbox/outbox.go
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Record 是事务性 outbox 的一行：与业务写入同事务落库，
// 由独立的中继进程发布到消息总线后标记 sent_at。
// 这弥补了 commit-then-publish 模式在提交与发布之间丢事件的窗口。
type Record struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement"`
	EventID   string     `gorm:"size:36;uniqueIndex"`
	Topic     string     `gorm:"size:64;index:idx_outbox_pending,priority:2"`
	Payload   []byte     `gorm:"type:json"`
	CreatedAt time.Time
	SentAt    *time.Time `gorm:"index:idx_outbox_pending,priority:1"`
}

func (Record) TableName() string {
	return "outbox_messages"
}

// InsertTx 在调用方的事务里写入一条待发布事件。
func InsertTx(tx *gorm.DB, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "outbox: marshal payload for topic %s", topic)
	}
	rec := &Record{
		EventID: uuid.NewString(),
		Topic:   topic,
		Payload: data,
	}
	return errors.Wrap(tx.Create(rec).Error, "outbox: insert record")
}

// FetchPending 按写入顺序取出未发布的记录。
func FetchPending(ctx context.Context, db *gorm.DB, limit int) ([]Record, error) {
	var out []Record
	err := db.WithContext(ctx).
		Where("sent_at IS NULL").
		Order("id").
		Limit(limit).
		Find(&out).Error
	return out, errors.Wrap(err, "outbox: fetch pending")
}

// MarkSent 标记一条记录已成功发布。
func MarkSent(ctx context.Context, db *gorm.DB, id uint64) error {
	err := db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ?", id).
		Update("sent_at", time.Now()).Error
	return errors.Wrap(err, "outbox: mark sent")
}
