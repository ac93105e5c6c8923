package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	tests := []struct {
		name       string
		page, size int
		wantPage   int
		wantSize   int
		wantOffset int
	}{
		{"defaults", 0, 0, 1, DefaultPageSize, 0},
		{"second page", 2, 10, 2, 10, 10},
		{"capped size", 3, 5000, 3, MaxPageSize, 2 * MaxPageSize},
		{"negative page", -4, 15, 1, 15, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPagination(tt.page, tt.size)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantSize, p.Limit())
			assert.Equal(t, tt.wantOffset, p.Offset())
		})
	}
}

func TestSetTotal(t *testing.T) {
	p := NewPagination(1, 20)
	p.SetTotal(41)
	assert.Equal(t, int64(41), p.Total)
	assert.Equal(t, int64(3), p.Pages)

	p.SetTotal(0)
	assert.Zero(t, p.Pages)
}
