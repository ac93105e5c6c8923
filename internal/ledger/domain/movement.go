// Package domain 账本服务的领域模型：资金流水、余额存储与流水日志的契约
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale 金额最多保留的小数位，与 decimal(32,18) 列一致
const AmountScale = 18

// maxAmount 金额上限（不含），整数部分最多 14 位
var maxAmount = decimal.New(1, 14)

// ValidAmount 金额为正且能被存储列精确表示
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() &&
		amount.LessThan(maxAmount) &&
		amount.Equal(amount.Truncate(AmountScale))
}

// MovementKind 流水类型
type MovementKind string

const (
	KindTransfer   MovementKind = "TRANSFER"
	KindDeposit    MovementKind = "DEPOSIT"
	KindWithdrawal MovementKind = "WITHDRAWAL"
	KindPayment    MovementKind = "PAYMENT"
)

// Valid 是否为已知类型
func (k MovementKind) Valid() bool {
	switch k {
	case KindTransfer, KindDeposit, KindWithdrawal, KindPayment:
		return true
	}
	return false
}

// MovementOutcome 流水结果
type MovementOutcome string

const (
	OutcomeSuccess MovementOutcome = "SUCCESS"
	OutcomeFailed  MovementOutcome = "FAILED"
	OutcomePending MovementOutcome = "PENDING"
)

// Valid 是否为已知结果
func (o MovementOutcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailed, OutcomePending:
		return true
	}
	return false
}

// Movement 资金流水，创建后不可修改
type Movement struct {
	MovementID string `json:"movement_id"`
	// 充值与提现的付款方与收款方都是账户本身
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          MovementKind    `json:"kind"`
	Outcome       MovementOutcome `json:"outcome"`
	// 失败原因，仅 FAILED 时有值
	FailureReason string `json:"failure_reason,omitempty"`
	// 关联的义务单号，仅 PAYMENT 时有值
	Reference  string    `json:"reference,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Involves 账户是否为付款方或收款方
func (m *Movement) Involves(accountID string) bool {
	return m.FromAccountID == accountID || m.ToAccountID == accountID
}

// Failed 用同一流水号生成一条 FAILED 记录
func (m *Movement) Failed(reason string, at time.Time) *Movement {
	failed := *m
	failed.Outcome = OutcomeFailed
	failed.FailureReason = reason
	failed.OccurredAt = at
	return &failed
}
