package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/walletledger/internal/account/domain"
)

func TestAccountRedisRepository(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewAccountRedisRepository(client, time.Minute)
	ctx := context.Background()

	id, err := repo.GetIDByEmail(ctx, "fay@example.com")
	require.NoError(t, err)
	assert.Empty(t, id)
	miss, err := repo.Get(ctx, "ACC-1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, repo.Save(ctx, &domain.Account{AccountID: "ACC-1", Email: "fay@example.com", FullName: "Fay"}))

	id, err = repo.GetIDByEmail(ctx, "fay@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ACC-1", id)

	acc, err := repo.Get(ctx, "ACC-1")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "Fay", acc.FullName)
	assert.True(t, mr.Exists("account:email:fay@example.com"))

	mr.FastForward(2 * time.Minute)
	id, err = repo.GetIDByEmail(ctx, "fay@example.com")
	require.NoError(t, err)
	assert.Empty(t, id, "entries expire after the ttl")
}
