// Package application 账本服务的用例层：资金划转引擎与查询
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/walletledger/internal/ledger/domain"
	"github.com/wyfcoding/walletledger/pkg/idgen"
	"github.com/wyfcoding/walletledger/pkg/logger"
	"github.com/wyfcoding/walletledger/pkg/metrics"
)

// TransferEngine 所有余额变动的唯一入口。
// 扣款、入账、流水追加与事件登记在同一个工作单元中完成，任何一步失败整体回滚。
// 不持有锁或余额缓存，防透支依赖存储层的条件扣减，可被并发调用。
type TransferEngine struct {
	uow       domain.UnitOfWork
	balances  domain.BalanceStore
	movements domain.MovementLog
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewTransferEngine 创建划转引擎，publisher 与 m 可以为 nil
func NewTransferEngine(
	uow domain.UnitOfWork,
	balances domain.BalanceStore,
	movements domain.MovementLog,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
) *TransferEngine {
	return &TransferEngine{
		uow:       uow,
		balances:  balances,
		movements: movements,
		publisher: publisher,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// movePlan 一次资金变动的步骤
type movePlan struct {
	kind      domain.MovementKind
	from      string
	to        string
	amount    decimal.Decimal
	reference string
	debit     bool
	credit    bool
}

// Transfer 从 senderID 向 receiverID 转账
func (e *TransferEngine) Transfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal) (*domain.Movement, error) {
	return e.execute(ctx, movePlan{
		kind:   domain.KindTransfer,
		from:   senderID,
		to:     receiverID,
		amount: amount,
		debit:  true,
		credit: true,
	})
}

// Pay 结算义务单时的转账，流水类型为 PAYMENT 并关联义务单号
func (e *TransferEngine) Pay(ctx context.Context, payerID, payeeID string, amount decimal.Decimal, reference string) (*domain.Movement, error) {
	return e.execute(ctx, movePlan{
		kind:      domain.KindPayment,
		from:      payerID,
		to:        payeeID,
		amount:    amount,
		reference: reference,
		debit:     true,
		credit:    true,
	})
}

// Deposit 充值，付款方与收款方都记为账户本身
func (e *TransferEngine) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (*domain.Movement, error) {
	return e.execute(ctx, movePlan{
		kind:   domain.KindDeposit,
		from:   accountID,
		to:     accountID,
		amount: amount,
		credit: true,
	})
}

// Withdraw 提现，余额不足时失败
func (e *TransferEngine) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (*domain.Movement, error) {
	return e.execute(ctx, movePlan{
		kind:   domain.KindWithdrawal,
		from:   accountID,
		to:     accountID,
		amount: amount,
		debit:  true,
	})
}

func (p movePlan) validate() *domain.LedgerError {
	if !domain.ValidAmount(p.amount) {
		return domain.NewLedgerError(domain.CodeInvalidAmount, "")
	}
	if p.debit && p.credit && p.from == p.to {
		return domain.NewLedgerError(domain.CodeSelfTransfer, "")
	}
	return nil
}

func (e *TransferEngine) execute(ctx context.Context, p movePlan) (*domain.Movement, error) {
	// 校验失败不产生任何副作用，也不记流水
	if verr := p.validate(); verr != nil {
		return nil, verr
	}

	m := &domain.Movement{
		MovementID:    idgen.GenPrefixed("MOV"),
		FromAccountID: p.from,
		ToAccountID:   p.to,
		Amount:        p.amount,
		Kind:          p.kind,
		Outcome:       domain.OutcomeSuccess,
		Reference:     p.reference,
		OccurredAt:    e.now(),
	}

	err := e.uow.InTx(ctx, func(ctx context.Context) error {
		if p.debit {
			ok, err := e.balances.TryDebit(ctx, p.from, p.amount)
			if err != nil {
				return err
			}
			if !ok {
				// 付款账户不存在与余额不足无法区分，统一按余额不足处理
				return domain.NewLedgerError(domain.CodeInsufficientFunds, m.MovementID)
			}
		}
		if p.credit {
			ok, err := e.balances.Credit(ctx, p.to, p.amount)
			if err != nil {
				return err
			}
			if !ok {
				return domain.NewLedgerError(domain.CodeAccountNotFound, m.MovementID)
			}
		}
		if err := e.movements.Append(ctx, m); err != nil {
			return err
		}
		if e.publisher != nil {
			return e.publisher.PublishInTx(ctx, domain.TopicMovements, m.MovementID, domain.NewMovementRecorded(m))
		}
		return nil
	})

	if err == nil {
		e.metrics.RecordMovement(string(p.kind), string(domain.OutcomeSuccess))
		logger.Info(ctx, "movement recorded",
			"movement_id", m.MovementID,
			"kind", p.kind,
			"from", p.from,
			"to", p.to,
			"amount", p.amount.String(),
		)
		return m, nil
	}

	var le *domain.LedgerError
	if errors.As(err, &le) {
		return nil, e.recordFailure(ctx, m, le)
	}

	// 基础设施故障：工作单元已整体回滚，余额与流水保持一致
	e.metrics.RecordMovement(string(p.kind), "ERROR")
	logger.Critical(ctx, "ledger unit of work failed and was rolled back",
		"movement_id", m.MovementID,
		"kind", p.kind,
		"from", p.from,
		"to", p.to,
		"amount", p.amount.String(),
		"error", err,
	)
	return nil, fmt.Errorf("%s %s: %w", p.kind, m.MovementID, err)
}

// recordFailure 在回滚之后追加 FAILED 流水。
// ctx 携带调用方事务时写入该事务，否则单独提交；调用方取消不影响审计记录的写入。
func (e *TransferEngine) recordFailure(ctx context.Context, m *domain.Movement, le *domain.LedgerError) error {
	failed := m.Failed(le.Err.Error(), e.now())
	if err := e.movements.Append(context.WithoutCancel(ctx), failed); err != nil {
		logger.Critical(ctx, "failed to record failed movement",
			"movement_id", m.MovementID,
			"reason", le.Code,
			"error", err,
		)
		return fmt.Errorf("record failed %s %s (%s): %w", m.Kind, m.MovementID, le.Code, err)
	}

	e.metrics.RecordMovement(string(m.Kind), string(domain.OutcomeFailed))
	logger.Warn(ctx, "movement rejected",
		"movement_id", m.MovementID,
		"kind", m.Kind,
		"from", m.FromAccountID,
		"to", m.ToAccountID,
		"amount", m.Amount.String(),
		"reason", le.Code,
	)
	return le
}
