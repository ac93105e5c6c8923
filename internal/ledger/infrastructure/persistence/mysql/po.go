package mysql

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/walletledger/internal/ledger/domain"
	"gorm.io/gorm"
)

// WalletPO 钱包余额
type WalletPO struct {
	gorm.Model
	AccountID string          `gorm:"column:account_id;type:varchar(32);uniqueIndex;not null"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(32,18);default:0;not null"`
}

func (WalletPO) TableName() string {
	return "wallets"
}

// MovementPO 资金流水，只插入不更新
type MovementPO struct {
	ID            uint            `gorm:"primaryKey;autoIncrement"`
	MovementID    string          `gorm:"column:movement_id;type:varchar(32);uniqueIndex;not null"`
	FromAccountID string          `gorm:"column:from_account_id;type:varchar(32);index;not null"`
	ToAccountID   string          `gorm:"column:to_account_id;type:varchar(32);index;not null"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(32,18);not null"`
	Kind          string          `gorm:"column:kind;type:varchar(16);not null"`
	Outcome       string          `gorm:"column:outcome;type:varchar(16);not null"`
	FailureReason string          `gorm:"column:failure_reason;type:varchar(255)"`
	Reference     string          `gorm:"column:reference;type:varchar(32);index"`
	OccurredAt    time.Time       `gorm:"column:occurred_at;index;not null"`
}

func (MovementPO) TableName() string {
	return "movements"
}

// ToDomain 转换为领域对象，未知的类型或结果视为损坏的记录
func (po *MovementPO) ToDomain() (*domain.Movement, error) {
	kind, outcome := domain.MovementKind(po.Kind), domain.MovementOutcome(po.Outcome)
	if !kind.Valid() || !outcome.Valid() {
		return nil, fmt.Errorf("movement %s: unknown kind %q or outcome %q", po.MovementID, po.Kind, po.Outcome)
	}
	return &domain.Movement{
		MovementID:    po.MovementID,
		FromAccountID: po.FromAccountID,
		ToAccountID:   po.ToAccountID,
		Amount:        po.Amount,
		Kind:          kind,
		Outcome:       outcome,
		FailureReason: po.FailureReason,
		Reference:     po.Reference,
		OccurredAt:    po.OccurredAt.UTC(),
	}, nil
}

func fromMovement(m *domain.Movement) *MovementPO {
	return &MovementPO{
		MovementID:    m.MovementID,
		FromAccountID: m.FromAccountID,
		ToAccountID:   m.ToAccountID,
		Amount:        m.Amount,
		Kind:          string(m.Kind),
		Outcome:       string(m.Outcome),
		FailureReason: m.FailureReason,
		Reference:     m.Reference,
		OccurredAt:    m.OccurredAt.UTC(),
	}
}

// OutboxStatus outbox 事件状态
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "PENDING"
	OutboxSent    OutboxStatus = "SENT"
	OutboxDead    OutboxStatus = "DEAD"
)

// OutboxEventPO 与业务写入同事务落库、由 relay 异步投递的事件
type OutboxEventPO struct {
	ID        uint         `gorm:"primaryKey;autoIncrement"`
	EventID   string       `gorm:"column:event_id;type:varchar(32);uniqueIndex;not null"`
	Topic     string       `gorm:"column:topic;type:varchar(128);not null"`
	MsgKey    string       `gorm:"column:msg_key;type:varchar(64);not null"`
	Payload   string       `gorm:"column:payload;type:text;not null"`
	Status    OutboxStatus `gorm:"column:status;type:varchar(16);index;not null"`
	Attempts  int          `gorm:"column:attempts;default:0;not null"`
	LastError string       `gorm:"column:last_error;type:varchar(512)"`
	CreatedAt time.Time
	UpdatedAt time.Time
	SentAt    *time.Time `gorm:"column:sent_at"`
}

func (OutboxEventPO) TableName() string {
	return "outbox_events"
}

// Models 账本相关的全部表，供 AutoMigrate 使用
func Models() []any {
	return []any{&WalletPO{}, &MovementPO{}, &OutboxEventPO{}}
}
