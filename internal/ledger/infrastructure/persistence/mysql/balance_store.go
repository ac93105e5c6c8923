package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/walletledger/internal/ledger/domain"
	"github.com/wyfcoding/walletledger/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// balanceStore 基于 wallets 表的余额存储
type balanceStore struct {
	db *gorm.DB
}

// NewBalanceStore 创建余额存储
func NewBalanceStore(gdb *gorm.DB) domain.BalanceStore {
	return &balanceStore{db: gdb}
}

func (s *balanceStore) Open(ctx context.Context, accountID string) error {
	err := db.Conn(ctx, s.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "account_id"}}, DoNothing: true}).
		Create(&WalletPO{AccountID: accountID, Balance: decimal.Zero}).Error
	if err != nil {
		return fmt.Errorf("open wallet %s: %w", accountID, err)
	}
	return nil
}

// TryDebit 单条条件 UPDATE，余额检查与扣减由数据库原子完成
func (s *balanceStore) TryDebit(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error) {
	res := db.Conn(ctx, s.db).Model(&WalletPO{}).
		Where("account_id = ? AND balance >= ?", accountID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return false, fmt.Errorf("debit wallet %s: %w", accountID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *balanceStore) Credit(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error) {
	res := db.Conn(ctx, s.db).Model(&WalletPO{}).
		Where("account_id = ?", accountID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return false, fmt.Errorf("credit wallet %s: %w", accountID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *balanceStore) Read(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var po WalletPO
	err := db.Conn(ctx, s.db).Select("balance").Where("account_id = ?", accountID).First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read wallet %s: %w", accountID, err)
	}
	return po.Balance, nil
}
