// Package domain 待结算义务（收款请求与账单）的领域模型
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrObligationNotFound   = errors.New("obligation not found")
	ErrObligationNotPending = errors.New("obligation is not pending")
	ErrNotObligationPayer   = errors.New("caller is not the payer of this obligation")
	ErrNotObligationIssuer  = errors.New("caller is not the issuer of this obligation")
	ErrIssuerNotBusiness    = errors.New("only business accounts can issue invoices")
	ErrInvalidAmount        = errors.New("amount must be positive with at most 18 decimal places and below 1e14")
	ErrSelfObligation       = errors.New("cannot bill your own account")
	ErrCustomerEmail        = errors.New("customer email is required")
	// ErrPaymentRejected 划转因余额不足或账户不存在被拒绝，义务单保持 PENDING，可重试
	ErrPaymentRejected = errors.New("payment rejected")
)

// maxAmount 金额上限（不含），与账本的 decimal(32,18) 列一致
var maxAmount = decimal.New(1, 14)

// ValidAmount 金额为正、最多 18 位小数且小于 1e14
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.LessThan(maxAmount) && amount.Equal(amount.Truncate(18))
}

// ObligationStatus 义务单状态，只允许 PENDING -> SETTLED | DECLINED
type ObligationStatus int8

const (
	ObligationStatusPending  ObligationStatus = 1 // 待支付
	ObligationStatusSettled  ObligationStatus = 2 // 已结算
	ObligationStatusDeclined ObligationStatus = 3 // 已拒绝/已取消
)

func (s ObligationStatus) String() string {
	switch s {
	case ObligationStatusPending:
		return "PENDING"
	case ObligationStatusSettled:
		return "SETTLED"
	case ObligationStatusDeclined:
		return "DECLINED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText JSON 中以名称输出
func (s ObligationStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal 是否为终态
func (s ObligationStatus) Terminal() bool {
	return s == ObligationStatusSettled || s == ObligationStatusDeclined
}

// ObligationType 义务单类型
type ObligationType int8

const (
	ObligationTypeRequest ObligationType = 1 // 个人收款请求
	ObligationTypeInvoice ObligationType = 2 // 商户账单
)

func (t ObligationType) String() string {
	switch t {
	case ObligationTypeRequest:
		return "REQUEST"
	case ObligationTypeInvoice:
		return "INVOICE"
	default:
		return "UNKNOWN"
	}
}

func (t ObligationType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Obligation 义务单聚合根
type Obligation struct {
	ObligationID string         `json:"obligation_id"`
	Type         ObligationType `json:"type"`
	// 收款方：请求的发起人或账单的开具人
	IssuerID string `json:"issuer_id"`
	// 请求创建时解析出的付款账户；账单为空，结算时按 PayerEmail 解析
	PayerID              string           `json:"payer_id,omitempty"`
	PayerEmail           string           `json:"payer_email"`
	Amount               decimal.Decimal  `json:"amount"`
	Description          string           `json:"description,omitempty"`
	Status               ObligationStatus `json:"status"`
	SettlementMovementID string           `json:"settlement_movement_id,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
	SettledAt            *time.Time       `json:"settled_at,omitempty"`
}

// NewPaymentRequest 创建收款请求
func NewPaymentRequest(id, requesterID, payerID, payerEmail string, amount decimal.Decimal) (*Obligation, error) {
	if !ValidAmount(amount) {
		return nil, ErrInvalidAmount
	}
	if requesterID == payerID {
		return nil, ErrSelfObligation
	}
	return &Obligation{
		ObligationID: id,
		Type:         ObligationTypeRequest,
		IssuerID:     requesterID,
		PayerID:      payerID,
		PayerEmail:   normalizeEmail(payerEmail),
		Amount:       amount,
		Status:       ObligationStatusPending,
	}, nil
}

// NewInvoice 创建账单
func NewInvoice(id, issuerID, customerEmail string, amount decimal.Decimal, description string) (*Obligation, error) {
	if !ValidAmount(amount) {
		return nil, ErrInvalidAmount
	}
	email := normalizeEmail(customerEmail)
	if email == "" {
		return nil, ErrCustomerEmail
	}
	return &Obligation{
		ObligationID: id,
		Type:         ObligationTypeInvoice,
		IssuerID:     issuerID,
		PayerEmail:   email,
		Amount:       amount,
		Description:  strings.TrimSpace(description),
		Status:       ObligationStatusPending,
	}, nil
}

// IsPending 是否待支付
func (o *Obligation) IsPending() bool {
	return o.Status == ObligationStatusPending
}

// Settle 标记已结算并关联 PAYMENT 流水
func (o *Obligation) Settle(movementID string, at time.Time) error {
	if !o.IsPending() {
		return ErrObligationNotPending
	}
	o.Status = ObligationStatusSettled
	o.SettlementMovementID = movementID
	o.SettledAt = &at
	o.UpdatedAt = at
	return nil
}

// Decline 拒绝或取消
func (o *Obligation) Decline(at time.Time) error {
	if !o.IsPending() {
		return ErrObligationNotPending
	}
	o.Status = ObligationStatusDeclined
	o.UpdatedAt = at
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
