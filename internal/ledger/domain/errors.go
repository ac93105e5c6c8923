package domain

import (
	"errors"
	"fmt"
)

// ErrorCode 业务失败码
type ErrorCode string

const (
	CodeInvalidAmount     ErrorCode = "INVALID_AMOUNT"
	CodeSelfTransfer      ErrorCode = "SELF_TRANSFER"
	CodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	CodeAccountNotFound   ErrorCode = "ACCOUNT_NOT_FOUND"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive with at most 18 decimal places and below 1e14")
	ErrSelfTransfer      = errors.New("sender and receiver are the same account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
)

var codeErrors = map[ErrorCode]error{
	CodeInvalidAmount:     ErrInvalidAmount,
	CodeSelfTransfer:      ErrSelfTransfer,
	CodeInsufficientFunds: ErrInsufficientFunds,
	CodeAccountNotFound:   ErrAccountNotFound,
}

// LedgerError 校验失败或业务失败。
// 余额与流水均未改变，可以安全重试；MovementID 指向记录的 FAILED 流水（校验失败时为空）。
type LedgerError struct {
	Code       ErrorCode
	MovementID string
	Err        error
}

// NewLedgerError 按失败码创建错误
func NewLedgerError(code ErrorCode, movementID string) *LedgerError {
	err, ok := codeErrors[code]
	if !ok {
		err = fmt.Errorf("ledger error %s", code)
	}
	return &LedgerError{Code: code, MovementID: movementID, Err: err}
}

func (e *LedgerError) Error() string {
	if e.MovementID != "" {
		return fmt.Sprintf("%s: %v (movement %s)", e.Code, e.Err, e.MovementID)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// IsBusinessFailure err 是否为预期内的校验或业务失败，而不是基础设施故障
func IsBusinessFailure(err error) bool {
	var le *LedgerError
	return errors.As(err, &le)
}

// CodeOf 取出失败码，非 LedgerError 返回空
func CodeOf(err error) ErrorCode {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}
