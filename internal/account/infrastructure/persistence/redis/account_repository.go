package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/walletledger/internal/account/domain"
)

// accountRedisRepository 账户读缓存：account:<id> 存账户 JSON，account:email:<email> 存账户 ID。
// 只缓存命中结果，不做空值缓存，新开户后立即可解析。
type accountRedisRepository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewAccountRedisRepository(client redis.UniversalClient, ttl time.Duration) domain.AccountReadRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &accountRedisRepository{
		client: client,
		prefix: "account:",
		ttl:    ttl,
	}
}

func (r *accountRedisRepository) Save(ctx context.Context, account *domain.Account) error {
	if account == nil {
		return nil
	}
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(account.AccountID), data, r.ttl)
		pipe.Set(ctx, r.emailKey(account.Email), account.AccountID, r.ttl)
		return nil
	})
	return err
}

func (r *accountRedisRepository) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	data, err := r.client.Get(ctx, r.key(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var account domain.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRedisRepository) GetIDByEmail(ctx context.Context, email string) (string, error) {
	id, err := r.client.Get(ctx, r.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

func (r *accountRedisRepository) key(id string) string {
	return r.prefix + id
}

func (r *accountRedisRepository) emailKey(email string) string {
	return r.prefix + "email:" + email
}
