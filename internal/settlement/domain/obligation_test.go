package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaymentRequest(t *testing.T) {
	t.Parallel()

	_, err := NewPaymentRequest("REQ-1", "A", "B", "b@example.com", decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NewPaymentRequest("REQ-1", "A", "B", "b@example.com", decimal.RequireFromString("0.0000000000000000001"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NewInvoice("INV-1", "A", "b@example.com", decimal.New(1, 14), "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NewPaymentRequest("REQ-1", "A", "A", "a@example.com", decimal.NewFromInt(5))
	assert.ErrorIs(t, err, ErrSelfObligation)

	req, err := NewPaymentRequest("REQ-1", "A", "B", " B@Example.com", decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.Equal(t, ObligationStatusPending, req.Status)
	assert.Equal(t, "b@example.com", req.PayerEmail)
}

func TestObligationTransitions(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewInvoice("INV-0", "SHOP", "  ", decimal.NewFromInt(20), "")
	assert.ErrorIs(t, err, ErrCustomerEmail)

	inv, err := NewInvoice("INV-1", "SHOP", "cust@example.com", decimal.NewFromInt(20), " lunch ")
	require.NoError(t, err)
	assert.Equal(t, "lunch", inv.Description)

	require.NoError(t, inv.Settle("MOV-1", at))
	assert.Equal(t, ObligationStatusSettled, inv.Status)
	assert.Equal(t, "MOV-1", inv.SettlementMovementID)
	require.NotNil(t, inv.SettledAt)
	assert.True(t, inv.Status.Terminal())

	assert.ErrorIs(t, inv.Settle("MOV-2", at), ErrObligationNotPending)
	assert.ErrorIs(t, inv.Decline(at), ErrObligationNotPending)

	req, err := NewPaymentRequest("REQ-2", "A", "B", "b@example.com", decimal.NewFromInt(1))
	require.NoError(t, err)
	require.NoError(t, req.Decline(at))
	assert.Equal(t, ObligationStatusDeclined, req.Status)
	assert.ErrorIs(t, req.Settle("MOV-3", at), ErrObligationNotPending)
}

func TestStatusJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(struct {
		Status ObligationStatus `json:"status"`
		Type   ObligationType   `json:"type"`
	}{ObligationStatusDeclined, ObligationTypeInvoice})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"DECLINED","type":"INVOICE"}`, string(data))
	assert.Equal(t, "UNKNOWN", ObligationStatus(9).String())
}
