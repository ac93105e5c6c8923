package application

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/walletledger/internal/ledger/domain"
	"github.com/wyfcoding/walletledger/pkg/utils"
)

// MovementDTO 流水传输对象
type MovementDTO struct {
	MovementID    string `json:"movement_id"`
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        string `json:"amount"`
	Kind          string `json:"kind"`
	Outcome       string `json:"outcome"`
	FailureReason string `json:"failure_reason,omitempty"`
	Reference     string `json:"reference,omitempty"`
	OccurredAt    int64  `json:"occurred_at"`
}

// ToMovementDTO 领域对象转传输对象
func ToMovementDTO(m *domain.Movement) *MovementDTO {
	return &MovementDTO{
		MovementID:    m.MovementID,
		FromAccountID: m.FromAccountID,
		ToAccountID:   m.ToAccountID,
		Amount:        m.Amount.String(),
		Kind:          string(m.Kind),
		Outcome:       string(m.Outcome),
		FailureReason: m.FailureReason,
		Reference:     m.Reference,
		OccurredAt:    m.OccurredAt.UnixMilli(),
	}
}

// HistoryPage 分页流水
type HistoryPage struct {
	Items []*MovementDTO `json:"items"`
	*utils.Pagination
}

// LedgerQueryService 余额与流水的读操作，每次都直接读存储，不做缓存
type LedgerQueryService struct {
	balances  domain.BalanceStore
	movements domain.MovementLog
}

func NewLedgerQueryService(balances domain.BalanceStore, movements domain.MovementLog) *LedgerQueryService {
	return &LedgerQueryService{balances: balances, movements: movements}
}

// GetBalance 当前余额，没有钱包的账户为 0
func (q *LedgerQueryService) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return q.balances.Read(ctx, accountID)
}

// GetHistory 账户的全部流水，按时间倒序
func (q *LedgerQueryService) GetHistory(ctx context.Context, accountID string) ([]*domain.Movement, error) {
	return q.movements.History(ctx, accountID)
}

// GetHistoryPage 分页查询，page 从 1 开始
func (q *LedgerQueryService) GetHistoryPage(ctx context.Context, accountID string, page, pageSize int) (*HistoryPage, error) {
	p := utils.NewPagination(page, pageSize)
	items, total, err := q.movements.HistoryPage(ctx, accountID, p.Limit(), p.Offset())
	if err != nil {
		return nil, fmt.Errorf("get history page: %w", err)
	}
	p.SetTotal(total)

	dtos := make([]*MovementDTO, 0, len(items))
	for _, m := range items {
		dtos = append(dtos, ToMovementDTO(m))
	}
	return &HistoryPage{Items: dtos, Pagination: p}, nil
}
