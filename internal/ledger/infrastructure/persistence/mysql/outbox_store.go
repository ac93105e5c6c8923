package mysql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wyfcoding/walletledger/pkg/db"
	"github.com/wyfcoding/walletledger/pkg/idgen"
	"gorm.io/gorm"
)

// OutboxStore outbox_events 表的读写
type OutboxStore struct {
	db *gorm.DB
}

// NewOutboxStore 创建 outbox 存储
func NewOutboxStore(gdb *gorm.DB) *OutboxStore {
	return &OutboxStore{db: gdb}
}

// Add 编码事件并写入当前事务
func (s *OutboxStore) Add(ctx context.Context, topic, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}
	po := &OutboxEventPO{
		EventID: idgen.GenPrefixed("EVT"),
		Topic:   topic,
		MsgKey:  key,
		Payload: string(payload),
		Status:  OutboxPending,
	}
	if err := db.Conn(ctx, s.db).Create(po).Error; err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// FetchPending 按写入顺序取出待投递事件
func (s *OutboxStore) FetchPending(ctx context.Context, limit int) ([]*OutboxEventPO, error) {
	var events []*OutboxEventPO
	err := db.Conn(ctx, s.db).
		Where("status = ?", OutboxPending).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox events: %w", err)
	}
	return events, nil
}

// MarkSent 标记已投递
func (s *OutboxStore) MarkSent(ctx context.Context, id uint) error {
	now := time.Now().UTC()
	return db.Conn(ctx, s.db).Model(&OutboxEventPO{}).
		Where("id = ? AND status = ?", id, OutboxPending).
		Updates(map[string]any{"status": OutboxSent, "sent_at": &now}).Error
}

// MarkFailed 记录一次失败的投递；dead 为 true 时不再重试
func (s *OutboxStore) MarkFailed(ctx context.Context, id uint, cause string, dead bool) error {
	if len(cause) > 512 {
		cause = cause[:512]
	}
	updates := map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": cause,
	}
	if dead {
		updates["status"] = OutboxDead
	}
	return db.Conn(ctx, s.db).Model(&OutboxEventPO{}).
		Where("id = ? AND status = ?", id, OutboxPending).
		Updates(updates).Error
}

// CountByStatus 按状态统计，用于监控与测试
func (s *OutboxStore) CountByStatus(ctx context.Context, status OutboxStatus) (int64, error) {
	var n int64
	err := db.Conn(ctx, s.db).Model(&OutboxEventPO{}).Where("status = ?", status).Count(&n).Error
	return n, err
}
