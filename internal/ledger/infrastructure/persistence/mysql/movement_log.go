package mysql

import (
	"context"
	"fmt"

	"github.com/wyfcoding/walletledger/internal/ledger/domain"
	"github.com/wyfcoding/walletledger/pkg/db"
	"gorm.io/gorm"
)

// movementLog 基于 movements 表的流水日志，只提供插入与查询
type movementLog struct {
	db *gorm.DB
}

// NewMovementLog 创建流水日志
func NewMovementLog(gdb *gorm.DB) domain.MovementLog {
	return &movementLog{db: gdb}
}

func (l *movementLog) Append(ctx context.Context, m *domain.Movement) error {
	if !m.Kind.Valid() || !m.Outcome.Valid() {
		return fmt.Errorf("append movement %s: unknown kind %q or outcome %q", m.MovementID, m.Kind, m.Outcome)
	}
	if err := db.Conn(ctx, l.db).Create(fromMovement(m)).Error; err != nil {
		return fmt.Errorf("append movement %s: %w", m.MovementID, err)
	}
	return nil
}

func (l *movementLog) History(ctx context.Context, accountID string) ([]*domain.Movement, error) {
	var pos []*MovementPO
	if err := l.involving(ctx, accountID).Order("occurred_at DESC, id DESC").Find(&pos).Error; err != nil {
		return nil, fmt.Errorf("history of %s: %w", accountID, err)
	}
	return toMovements(pos)
}

func (l *movementLog) HistoryPage(ctx context.Context, accountID string, limit, offset int) ([]*domain.Movement, int64, error) {
	var total int64
	if err := l.involving(ctx, accountID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count history of %s: %w", accountID, err)
	}

	var pos []*MovementPO
	err := l.involving(ctx, accountID).
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&pos).Error
	if err != nil {
		return nil, 0, fmt.Errorf("history page of %s: %w", accountID, err)
	}
	out, err := toMovements(pos)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (l *movementLog) involving(ctx context.Context, accountID string) *gorm.DB {
	return db.Conn(ctx, l.db).Model(&MovementPO{}).
		Where("from_account_id = ? OR to_account_id = ?", accountID, accountID)
}

func toMovements(pos []*MovementPO) ([]*domain.Movement, error) {
	out := make([]*domain.Movement, 0, len(pos))
	for _, po := range pos {
		m, err := po.ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
