// Package domain 账户目录：账户身份与邮箱解析
package domain

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidName     = errors.New("full name is required")
	ErrInvalidRole     = errors.New("role must be PERSONAL or BUSINESS")
)

// Role 账户角色，只有商户账户可以开具账单
type Role string

const (
	RolePersonal Role = "PERSONAL"
	RoleBusiness Role = "BUSINESS"
)

// ParseRole 空值视为 PERSONAL，大小写不敏感
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case "", RolePersonal:
		return RolePersonal, nil
	case RoleBusiness:
		return RoleBusiness, nil
	}
	return "", ErrInvalidRole
}

// Account 账户目录条目，余额由账本服务持有
type Account struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccount 校验并创建账户实体
func NewAccount(accountID, email, fullName string, role Role) (*Account, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, ErrInvalidName
	}
	if role != RolePersonal && role != RoleBusiness {
		return nil, ErrInvalidRole
	}
	return &Account{AccountID: accountID, Email: normalized, FullName: fullName, Role: role}, nil
}

// IsBusiness 是否为商户账户
func (a *Account) IsBusiness() bool {
	return a.Role == RoleBusiness
}

// NormalizeEmail 去空白并转小写，格式不合法时返回 ErrInvalidEmail
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// AccountRepository 账户目录仓储
type AccountRepository interface {
	// Create 新增账户，邮箱重复时返回 ErrEmailTaken
	Create(ctx context.Context, account *Account) error
	Get(ctx context.Context, accountID string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
}

// AccountReadRepository 账户读缓存，未命中返回零值与 nil
type AccountReadRepository interface {
	Save(ctx context.Context, account *Account) error
	Get(ctx context.Context, accountID string) (*Account, error)
	GetIDByEmail(ctx context.Context, email string) (string, error)
}

// IdentityResolver 邮箱到账户 ID 的解析，找不到时返回 ErrAccountNotFound
type IdentityResolver interface {
	ResolveAccountID(ctx context.Context, email string) (string, error)
}

// WalletOpener 开户时创建零余额钱包
type WalletOpener interface {
	Open(ctx context.Context, accountID string) error
}

// UnitOfWork 事务边界
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
