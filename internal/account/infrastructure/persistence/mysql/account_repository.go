package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/walletledger/internal/account/domain"
	"github.com/wyfcoding/walletledger/pkg/db"
	"gorm.io/gorm"
)

// AccountPO 账户目录持久化对象
type AccountPO struct {
	gorm.Model
	AccountID string `gorm:"column:account_id;type:varchar(32);uniqueIndex;not null"`
	Email     string `gorm:"column:email;type:varchar(255);uniqueIndex;not null"`
	FullName  string `gorm:"column:full_name;type:varchar(128);not null"`
	Role      string `gorm:"column:role;type:varchar(16);default:'PERSONAL';not null"`
}

func (AccountPO) TableName() string {
	return "accounts"
}

// ToDomain 转换为领域对象
func (po *AccountPO) ToDomain() *domain.Account {
	return &domain.Account{
		AccountID: po.AccountID,
		Email:     po.Email,
		FullName:  po.FullName,
		Role:      domain.Role(po.Role),
		CreatedAt: po.CreatedAt.UTC(),
		UpdatedAt: po.UpdatedAt.UTC(),
	}
}

// accountRepository 账户仓储实现
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository 创建账户仓储
func NewAccountRepository(gdb *gorm.DB) domain.AccountRepository {
	return &accountRepository{db: gdb}
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	po := &AccountPO{
		AccountID: account.AccountID,
		Email:     account.Email,
		FullName:  account.FullName,
		Role:      string(account.Role),
	}
	err := db.Conn(ctx, r.db).Create(po).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("create account %s: %w", account.AccountID, err)
	}
	account.CreatedAt = po.CreatedAt.UTC()
	account.UpdatedAt = po.UpdatedAt.UTC()
	return nil
}

func (r *accountRepository) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	return r.first(ctx, "account_id = ?", accountID)
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *accountRepository) first(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var po AccountPO
	err := db.Conn(ctx, r.db).Where(query, arg).First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return po.ToDomain(), nil
}

// Models 账户目录相关的表，供 AutoMigrate 使用
func Models() []any {
	return []any{&AccountPO{}}
}
