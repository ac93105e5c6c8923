package adapter

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	ledgerapp "github.com/wyfcoding/walletledger/internal/ledger/application"
	ledgerdomain "github.com/wyfcoding/walletledger/internal/ledger/domain"
	"github.com/wyfcoding/walletledger/internal/settlement/domain"
)

// LedgerPaymentAdapter 通过账本划转引擎完成结算付款
type LedgerPaymentAdapter struct {
	engine *ledgerapp.TransferEngine
}

func NewLedgerPaymentAdapter(engine *ledgerapp.TransferEngine) domain.PaymentGateway {
	return &LedgerPaymentAdapter{engine: engine}
}

// Pay 业务拒绝同时包装 ErrPaymentRejected 与原始的账本错误
func (a *LedgerPaymentAdapter) Pay(ctx context.Context, payerID, payeeID string, amount decimal.Decimal, reference string) (string, error) {
	m, err := a.engine.Pay(ctx, payerID, payeeID, amount, reference)
	if err != nil {
		if ledgerdomain.IsBusinessFailure(err) {
			return "", fmt.Errorf("%w: %w", domain.ErrPaymentRejected, err)
		}
		return "", fmt.Errorf("ledger pay %s: %w", reference, err)
	}
	return m.MovementID, nil
}
