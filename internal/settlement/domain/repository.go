package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ObligationRepository 义务单仓储
type ObligationRepository interface {
	Create(ctx context.Context, o *Obligation) error
	// Get 找不到时返回 ErrObligationNotFound
	Get(ctx context.Context, obligationID string) (*Obligation, error)
	// TransitionStatus 仅当当前状态为 from 时改为 to，返回是否发生变更
	TransitionStatus(ctx context.Context, obligationID string, from, to ObligationStatus, movementID string, at time.Time) (bool, error)
	// ListIncoming 待 accountID 支付的 PENDING 义务单：按 payer_id 匹配的请求与按邮箱匹配的账单
	ListIncoming(ctx context.Context, accountID, email string) ([]*Obligation, error)
	// ListIssued accountID 开具的全部义务单
	ListIssued(ctx context.Context, accountID string) ([]*Obligation, error)
}

// PaymentGateway 结算所需的资金划转能力。
// 余额不足等业务拒绝返回包装了 ErrPaymentRejected 的错误。
type PaymentGateway interface {
	Pay(ctx context.Context, payerID, payeeID string, amount decimal.Decimal, reference string) (movementID string, err error)
}

// IdentityResolver 邮箱解析为账户 ID
type IdentityResolver interface {
	ResolveAccountID(ctx context.Context, email string) (string, error)
}

// AccountDirectory 账户 ID 反查邮箱与角色
type AccountDirectory interface {
	EmailOf(ctx context.Context, accountID string) (string, error)
	IsBusiness(ctx context.Context, accountID string) (bool, error)
}

// UnitOfWork 事务边界，嵌套调用以 SAVEPOINT 执行
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
