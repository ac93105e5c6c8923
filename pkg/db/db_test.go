package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notePO struct {
	ID   uint `gorm:"primaryKey"`
	Body string
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Init(Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	})
	require.NoError(t, err)
	require.NoError(t, d.AutoMigrate(&notePO{}))
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func countNotes(t *testing.T, d *DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, d.Model(&notePO{}).Count(&n).Error)
	return n
}

func TestInTxCommitAndRollback(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, d.InTx(ctx, func(ctx context.Context) error {
		return Conn(ctx, d.DB).Create(&notePO{Body: "kept"}).Error
	}))

	boom := errors.New("boom")
	err := d.InTx(ctx, func(ctx context.Context) error {
		if err := Conn(ctx, d.DB).Create(&notePO{Body: "dropped"}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), countNotes(t, d))
}

func TestInTxNestedSavepoint(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	err := d.InTx(ctx, func(ctx context.Context) error {
		if err := Conn(ctx, d.DB).Create(&notePO{Body: "outer"}).Error; err != nil {
			return err
		}
		inner := d.InTx(ctx, func(ctx context.Context) error {
			if err := Conn(ctx, d.DB).Create(&notePO{Body: "inner"}).Error; err != nil {
				return err
			}
			return errors.New("inner failed")
		})
		assert.Error(t, inner)
		return nil
	})
	require.NoError(t, err)

	var notes []notePO
	require.NoError(t, d.Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, "outer", notes[0].Body)
}

func TestInitUnsupportedDriver(t *testing.T) {
	_, err := Init(Config{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}
