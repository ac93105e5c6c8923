package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// BalanceStore 每个账户一份当前余额。金额由调用方保证为正。
type BalanceStore interface {
	// Open 为账户创建余额为 0 的钱包，已存在时不做任何事
	Open(ctx context.Context, accountID string) error
	// TryDebit 仅当余额 >= amount 时扣减，检查与扣减是同一条原子语句；返回是否扣减
	TryDebit(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error)
	// Credit 无条件增加余额；账户不存在时返回 false
	Credit(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error)
	// Read 当前余额，没有钱包时为 0
	Read(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// MovementLog 只追加的资金流水日志
type MovementLog interface {
	// Append 持久化一条流水，任何存储错误都必须返回
	Append(ctx context.Context, m *Movement) error
	// History 账户作为付款方或收款方的全部流水，按时间倒序，每次调用都从存储重新计算
	History(ctx context.Context, accountID string) ([]*Movement, error)
	// HistoryPage History 的分页版本，返回当前页与总数
	HistoryPage(ctx context.Context, accountID string, limit, offset int) ([]*Movement, int64, error)
}

// UnitOfWork 事务边界。fn 返回错误时其中所有写入回滚；ctx 已在事务中时嵌套执行。
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher 在当前事务中登记待发布事件（outbox）
type EventPublisher interface {
	PublishInTx(ctx context.Context, topic, key string, event any) error
}
