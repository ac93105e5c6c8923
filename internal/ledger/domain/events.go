package domain

import "time"

// TopicMovements 资金流水事件主题
const TopicMovements = "ledger.movements"

// MovementRecorded 成功流水落账后发布
type MovementRecorded struct {
	MovementID  string       `json:"movement_id"`
	Kind        MovementKind `json:"kind"`
	FromAccount string       `json:"from_account"`
	ToAccount   string       `json:"to_account"`
	// 十进制字符串，避免浮点精度损失
	Amount     string    `json:"amount"`
	Reference  string    `json:"reference,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewMovementRecorded 由成功流水构造事件
func NewMovementRecorded(m *Movement) MovementRecorded {
	return MovementRecorded{
		MovementID:  m.MovementID,
		Kind:        m.Kind,
		FromAccount: m.FromAccountID,
		ToAccount:   m.ToAccountID,
		Amount:      m.Amount.String(),
		Reference:   m.Reference,
		OccurredAt:  m.OccurredAt,
	}
}
