package mysql

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/walletledger/internal/account/domain"
	"github.com/wyfcoding/walletledger/pkg/db"
)

func TestAccountRepository(t *testing.T) {
	t.Parallel()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	d, err := db.Init(db.Config{Driver: "sqlite", DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", name)})
	require.NoError(t, err)
	require.NoError(t, d.AutoMigrate(Models()...))
	t.Cleanup(func() { _ = d.Close() })

	repo := NewAccountRepository(d.DB)
	ctx := context.Background()

	acc := &domain.Account{AccountID: "ACC-1", Email: "erin@example.com", FullName: "Erin"}
	require.NoError(t, repo.Create(ctx, acc))
	assert.False(t, acc.CreatedAt.IsZero())

	got, err := repo.Get(ctx, "ACC-1")
	require.NoError(t, err)
	assert.Equal(t, "erin@example.com", got.Email)
	assert.Equal(t, domain.RolePersonal, got.Role, "role defaults to PERSONAL")

	require.NoError(t, repo.Create(ctx, &domain.Account{AccountID: "ACC-3", Email: "shop@example.com", FullName: "Shop", Role: domain.RoleBusiness}))
	got, err = repo.Get(ctx, "ACC-3")
	require.NoError(t, err)
	assert.True(t, got.IsBusiness())

	got, err = repo.GetByEmail(ctx, "erin@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ACC-1", got.AccountID)

	err = repo.Create(ctx, &domain.Account{AccountID: "ACC-2", Email: "erin@example.com", FullName: "Other"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	_, err = repo.Get(ctx, "ACC-404")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
