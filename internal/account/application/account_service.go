// Package application 账户目录用例：开户、查询与邮箱解析
package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/walletledger/internal/account/domain"
	"github.com/wyfcoding/walletledger/pkg/idgen"
	"github.com/wyfcoding/walletledger/pkg/logger"
)

// OpenAccountCommand 开户命令
type OpenAccountCommand struct {
	Email    string `json:"email" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	// PERSONAL 或 BUSINESS，缺省为 PERSONAL
	Role string `json:"role"`
}

// AccountDTO 账户信息传输对象
type AccountDTO struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
}

// AccountService 账户目录服务，同时实现 domain.IdentityResolver
type AccountService struct {
	uow      domain.UnitOfWork
	repo     domain.AccountRepository
	readRepo domain.AccountReadRepository
	wallets  domain.WalletOpener
}

var _ domain.IdentityResolver = (*AccountService)(nil)

// NewAccountService 创建账户服务，readRepo 可以为 nil
func NewAccountService(uow domain.UnitOfWork, repo domain.AccountRepository, readRepo domain.AccountReadRepository, wallets domain.WalletOpener) *AccountService {
	return &AccountService{uow: uow, repo: repo, readRepo: readRepo, wallets: wallets}
}

// Open 开户：目录条目与零余额钱包在同一事务中创建
func (s *AccountService) Open(ctx context.Context, cmd OpenAccountCommand) (*AccountDTO, error) {
	role, err := domain.ParseRole(cmd.Role)
	if err != nil {
		return nil, err
	}
	account, err := domain.NewAccount(idgen.GenPrefixed("ACC"), cmd.Email, cmd.FullName, role)
	if err != nil {
		return nil, err
	}

	err = s.uow.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, account); err != nil {
			return err
		}
		return s.wallets.Open(ctx, account.AccountID)
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("open account: %w", err)
	}

	s.cache(ctx, account)
	logger.Info(ctx, "account opened", "account_id", account.AccountID, "role", account.Role)
	return toDTO(account), nil
}

// Get 按账户 ID 查询
func (s *AccountService) Get(ctx context.Context, accountID string) (*AccountDTO, error) {
	if s.readRepo != nil {
		if cached, err := s.readRepo.Get(ctx, accountID); err == nil && cached != nil {
			return toDTO(cached), nil
		}
	}
	account, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, account)
	return toDTO(account), nil
}

// GetByEmail 按邮箱查询
func (s *AccountService) GetByEmail(ctx context.Context, email string) (*AccountDTO, error) {
	id, err := s.ResolveAccountID(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ResolveAccountID 邮箱解析为账户 ID，先查缓存，缓存故障时回源数据库
func (s *AccountService) ResolveAccountID(ctx context.Context, email string) (string, error) {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		// 格式不合法的邮箱不可能对应任何账户
		return "", domain.ErrAccountNotFound
	}

	if s.readRepo != nil {
		id, err := s.readRepo.GetIDByEmail(ctx, normalized)
		if err != nil {
			logger.Warn(ctx, "identity cache lookup failed", "error", err)
		} else if id != "" {
			return id, nil
		}
	}

	account, err := s.repo.GetByEmail(ctx, normalized)
	if err != nil {
		return "", err
	}
	s.cache(ctx, account)
	return account.AccountID, nil
}

// EmailOf 账户 ID 反查邮箱
func (s *AccountService) EmailOf(ctx context.Context, accountID string) (string, error) {
	account, err := s.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	return account.Email, nil
}

// IsBusiness 账户是否为商户账户
func (s *AccountService) IsBusiness(ctx context.Context, accountID string) (bool, error) {
	account, err := s.Get(ctx, accountID)
	if err != nil {
		return false, err
	}
	return account.Role == string(domain.RoleBusiness), nil
}

func (s *AccountService) cache(ctx context.Context, account *domain.Account) {
	if s.readRepo == nil {
		return
	}
	if err := s.readRepo.Save(ctx, account); err != nil {
		logger.Warn(ctx, "failed to cache account", "account_id", account.AccountID, "error", err)
	}
}

func toDTO(a *domain.Account) *AccountDTO {
	return &AccountDTO{
		AccountID: a.AccountID,
		Email:     a.Email,
		FullName:  a.FullName,
		Role:      string(a.Role),
		CreatedAt: a.CreatedAt.UnixMilli(),
	}
}
