// internal/pkg/mq/journal.go
package mq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Journal 是进程内总线的持久化底座：消息在入队前先落库，
// 处理成功后标记完成，重试耗尽的标记为死信留待人工处理。
// 订阅启动时回放未完成的记录，进程退出不丢消息。
type Journal interface {
	Append(ctx context.Context, msg Message) error
	MarkDone(ctx context.Context, id string) error
	MarkDead(ctx context.Context, id string, reason string) error
	// Pending 返回主题下所有未完成（非 done、非 dead）的消息，按写入顺序。
	Pending(ctx context.Context, topic string) ([]Message, error)
}

const (
	journalStatePending = "PENDING"
	journalStateDone    = "DONE"
	journalStateDead    = "DEAD"
)

// JournalRecord 是本地队列消息的持久化模型。
type JournalRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Topic     string `gorm:"size:128;index:idx_topic_state"`
	Payload   []byte `gorm:"type:json"`
	Headers   []byte `gorm:"type:json"`
	State     string `gorm:"size:16;index:idx_topic_state"`
	Reason    string `gorm:"size:512"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (JournalRecord) TableName() string {
	return "local_queue_messages"
}

// GormJournal 把日志落在与业务共享的 MySQL 里。
type GormJournal struct {
	db *gorm.DB
}

func NewGormJournal(db *gorm.DB) *GormJournal {
	return &GormJournal{db: db}
}

func (j *GormJournal) Append(ctx context.Context, msg Message) error {
	headers, err := json.Marshal(msg.Headers)
	if err != nil {
		return errors.Wrap(err, "journal: marshal headers")
	}
	rec := JournalRecord{
		ID:      msg.ID,
		Topic:   msg.Topic,
		Payload: msg.Payload,
		Headers: headers,
		State:   journalStatePending,
	}
	if err := j.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.Wrapf(err, "journal: append message %s", msg.ID)
	}
	return nil
}

func (j *GormJournal) MarkDone(ctx context.Context, id string) error {
	err := j.db.WithContext(ctx).
		Model(&JournalRecord{}).
		Where("id = ?", id).
		Update("state", journalStateDone).Error
	return errors.Wrapf(err, "journal: mark message %s done", id)
}

func (j *GormJournal) MarkDead(ctx context.Context, id string, reason string) error {
	err := j.db.WithContext(ctx).
		Model(&JournalRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"state": journalStateDead, "reason": reason}).Error
	return errors.Wrapf(err, "journal: mark message %s dead", id)
}

func (j *GormJournal) Pending(ctx context.Context, topic string) ([]Message, error) {
	var records []JournalRecord
	err := j.db.WithContext(ctx).
		Where("topic = ? AND state = ?", topic, journalStatePending).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrapf(err, "journal: load pending messages for topic %s", topic)
	}

	msgs := make([]Message, 0, len(records))
	for _, rec := range records {
		msg := Message{ID: rec.ID, Topic: rec.Topic, Payload: rec.Payload}
		if len(rec.Headers) > 0 {
			if err := json.Unmarshal(rec.Headers, &msg.Headers); err != nil {
				return nil, errors.Wrapf(err, "journal: decode headers of message %s", rec.ID)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
