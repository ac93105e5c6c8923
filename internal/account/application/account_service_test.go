package application_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/walletledger/internal/account/application"
	"github.com/wyfcoding/walletledger/internal/account/domain"
	accountmysql "github.com/wyfcoding/walletledger/internal/account/infrastructure/persistence/mysql"
	accountredis "github.com/wyfcoding/walletledger/internal/account/infrastructure/persistence/redis"
	ledgermysql "github.com/wyfcoding/walletledger/internal/ledger/infrastructure/persistence/mysql"
	"github.com/wyfcoding/walletledger/pkg/db"
)

func newService(t *testing.T, wallets domain.WalletOpener) (*application.AccountService, *db.DB, *miniredis.Miniredis) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	d, err := db.Init(db.Config{Driver: "sqlite", DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", name)})
	require.NoError(t, err)
	require.NoError(t, d.AutoMigrate(append(accountmysql.Models(), ledgermysql.Models()...)...))
	t.Cleanup(func() { _ = d.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if wallets == nil {
		wallets = ledgermysql.NewBalanceStore(d.DB)
	}
	svc := application.NewAccountService(
		d,
		accountmysql.NewAccountRepository(d.DB),
		accountredis.NewAccountRedisRepository(client, time.Minute),
		wallets,
	)
	return svc, d, mr
}

func TestOpenCreatesAccountAndWallet(t *testing.T) {
	t.Parallel()
	svc, d, _ := newService(t, nil)
	ctx := context.Background()

	acc, err := svc.Open(ctx, application.OpenAccountCommand{Email: "Gil@Example.com", FullName: "Gil"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(acc.AccountID, "ACC-"))
	assert.Equal(t, "gil@example.com", acc.Email)

	var wallets int64
	require.NoError(t, d.Model(&ledgermysql.WalletPO{}).Where("account_id = ?", acc.AccountID).Count(&wallets).Error)
	assert.Equal(t, int64(1), wallets)

	_, err = svc.Open(ctx, application.OpenAccountCommand{Email: "gil@example.com", FullName: "Gil Again"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	_, err = svc.Open(ctx, application.OpenAccountCommand{Email: "broken", FullName: "X"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = svc.Open(ctx, application.OpenAccountCommand{Email: "x@example.com", FullName: "X", Role: "ADMIN"})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestIsBusiness(t *testing.T) {
	t.Parallel()
	svc, _, mr := newService(t, nil)
	ctx := context.Background()

	person, err := svc.Open(ctx, application.OpenAccountCommand{Email: "lee@example.com", FullName: "Lee"})
	require.NoError(t, err)
	assert.Equal(t, string(domain.RolePersonal), person.Role)
	shop, err := svc.Open(ctx, application.OpenAccountCommand{Email: "shop@example.com", FullName: "Shop", Role: "business"})
	require.NoError(t, err)

	ok, err := svc.IsBusiness(ctx, shop.AccountID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.IsBusiness(ctx, person.AccountID)
	require.NoError(t, err)
	assert.False(t, ok)

	// 角色随缓存条目一起保存，回源后不变
	mr.FlushAll()
	ok, err = svc.IsBusiness(ctx, shop.AccountID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.IsBusiness(ctx, "ACC-missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

type brokenWallets struct{}

func (brokenWallets) Open(context.Context, string) error { return errors.New("wallet store down") }

func TestOpenRollsBackWhenWalletFails(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t, brokenWallets{})
	ctx := context.Background()

	_, err := svc.Open(ctx, application.OpenAccountCommand{Email: "hana@example.com", FullName: "Hana"})
	require.Error(t, err)

	_, err = svc.ResolveAccountID(ctx, "hana@example.com")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestResolveAccountIDUsesCache(t *testing.T) {
	t.Parallel()
	svc, _, mr := newService(t, nil)
	ctx := context.Background()

	acc, err := svc.Open(ctx, application.OpenAccountCommand{Email: "ivan@example.com", FullName: "Ivan"})
	require.NoError(t, err)
	assert.Equal(t, acc.AccountID, mustGet(t, mr, "account:email:ivan@example.com"))

	id, err := svc.ResolveAccountID(ctx, " IVAN@example.com ")
	require.NoError(t, err)
	assert.Equal(t, acc.AccountID, id)

	// 缓存丢失后回源数据库并回填
	mr.FlushAll()
	id, err = svc.ResolveAccountID(ctx, "ivan@example.com")
	require.NoError(t, err)
	assert.Equal(t, acc.AccountID, id)
	assert.Equal(t, acc.AccountID, mustGet(t, mr, "account:email:ivan@example.com"))

	// Redis 不可用时仍可解析
	mr.Close()
	id, err = svc.ResolveAccountID(ctx, "ivan@example.com")
	require.NoError(t, err)
	assert.Equal(t, acc.AccountID, id)

	_, err = svc.ResolveAccountID(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = svc.ResolveAccountID(ctx, "not an email")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestGetByEmail(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t, nil)
	ctx := context.Background()

	acc, err := svc.Open(ctx, application.OpenAccountCommand{Email: "jo@example.com", FullName: "Jo"})
	require.NoError(t, err)

	got, err := svc.GetByEmail(ctx, "jo@example.com")
	require.NoError(t, err)
	assert.Equal(t, acc.AccountID, got.AccountID)
	assert.Equal(t, "Jo", got.FullName)

	email, err := svc.EmailOf(ctx, acc.AccountID)
	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", email)

	_, err = svc.Get(ctx, "ACC-missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = svc.EmailOf(ctx, "ACC-missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
