// Package application 结算用例：开具收款请求与账单、结算、拒绝以及收件箱查询
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/walletledger/internal/settlement/domain"
	"github.com/wyfcoding/walletledger/pkg/idgen"
	"github.com/wyfcoding/walletledger/pkg/logger"
	"github.com/wyfcoding/walletledger/pkg/metrics"
)

// CreateRequestCommand 发起收款请求
type CreateRequestCommand struct {
	RequesterID string `json:"requester_id" binding:"required"`
	PayerEmail  string `json:"payer_email" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
}

// CreateInvoiceCommand 开具账单
type CreateInvoiceCommand struct {
	IssuerID      string `json:"issuer_id" binding:"required"`
	CustomerEmail string `json:"customer_email" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	Description   string `json:"description"`
}

// SettlementService 结算服务。
// 结算时划转与状态变更处于同一事务：划转以 SAVEPOINT 嵌套执行，状态以 PENDING 为条件更新，
// 两者要么一起提交，要么一起回滚。
type SettlementService struct {
	uow       domain.UnitOfWork
	repo      domain.ObligationRepository
	payments  domain.PaymentGateway
	resolver  domain.IdentityResolver
	directory domain.AccountDirectory
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewSettlementService 创建结算服务，m 可以为 nil
func NewSettlementService(
	uow domain.UnitOfWork,
	repo domain.ObligationRepository,
	payments domain.PaymentGateway,
	resolver domain.IdentityResolver,
	directory domain.AccountDirectory,
	m *metrics.Metrics,
) *SettlementService {
	return &SettlementService{
		uow:       uow,
		repo:      repo,
		payments:  payments,
		resolver:  resolver,
		directory: directory,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest 向 payerEmail 对应的账户发起收款请求
func (s *SettlementService) CreateRequest(ctx context.Context, cmd CreateRequestCommand) (*domain.Obligation, error) {
	amount, err := parseAmount(cmd.Amount)
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.EmailOf(ctx, cmd.RequesterID); err != nil {
		return nil, err
	}
	payerID, err := s.resolver.ResolveAccountID(ctx, cmd.PayerEmail)
	if err != nil {
		return nil, err
	}

	o, err := domain.NewPaymentRequest(idgen.GenPrefixed("REQ"), cmd.RequesterID, payerID, cmd.PayerEmail, amount)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.metrics.RecordSettlement(o.Type.String(), "CREATED")
	logger.Info(ctx, "payment request created",
		"obligation_id", o.ObligationID,
		"requester", o.IssuerID,
		"payer", o.PayerID,
		"amount", o.Amount.String(),
	)
	return o, nil
}

// CreateInvoice 商户向 customerEmail 开具账单，客户在结算时才解析为账户
func (s *SettlementService) CreateInvoice(ctx context.Context, cmd CreateInvoiceCommand) (*domain.Obligation, error) {
	amount, err := parseAmount(cmd.Amount)
	if err != nil {
		return nil, err
	}
	issuerEmail, err := s.directory.EmailOf(ctx, cmd.IssuerID)
	if err != nil {
		return nil, err
	}
	business, err := s.directory.IsBusiness(ctx, cmd.IssuerID)
	if err != nil {
		return nil, err
	}
	if !business {
		return nil, domain.ErrIssuerNotBusiness
	}

	o, err := domain.NewInvoice(idgen.GenPrefixed("INV"), cmd.IssuerID, cmd.CustomerEmail, amount, cmd.Description)
	if err != nil {
		return nil, err
	}
	if o.PayerEmail == issuerEmail {
		return nil, domain.ErrSelfObligation
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	s.metrics.RecordSettlement(o.Type.String(), "CREATED")
	logger.Info(ctx, "invoice created",
		"obligation_id", o.ObligationID,
		"issuer", o.IssuerID,
		"customer_email", o.PayerEmail,
		"amount", o.Amount.String(),
	)
	return o, nil
}

// SettleRequest 付款方支付收款请求
func (s *SettlementService) SettleRequest(ctx context.Context, requestID, payerID string) (*domain.Obligation, error) {
	return s.settle(ctx, domain.ObligationTypeRequest, requestID, payerID)
}

// SettleInvoice 客户支付账单
func (s *SettlementService) SettleInvoice(ctx context.Context, invoiceID, payerID string) (*domain.Obligation, error) {
	return s.settle(ctx, domain.ObligationTypeInvoice, invoiceID, payerID)
}

func (s *SettlementService) settle(ctx context.Context, typ domain.ObligationType, obligationID, payerID string) (*domain.Obligation, error) {
	var (
		settled  *domain.Obligation
		rejected error
	)

	err := s.uow.InTx(ctx, func(ctx context.Context) error {
		o, err := s.load(ctx, typ, obligationID)
		if err != nil {
			return err
		}
		if !o.IsPending() {
			return domain.ErrObligationNotPending
		}
		if err := s.authorizePayer(ctx, o, payerID); err != nil {
			return err
		}

		movementID, err := s.payments.Pay(ctx, payerID, o.IssuerID, o.Amount, o.ObligationID)
		if err != nil {
			if errors.Is(err, domain.ErrPaymentRejected) {
				// 划转已回滚到保存点，提交外层事务以保留 FAILED 流水，义务单保持 PENDING
				rejected = err
				return nil
			}
			return err
		}

		at := s.now()
		ok, err := s.repo.TransitionStatus(ctx, o.ObligationID, domain.ObligationStatusPending, domain.ObligationStatusSettled, movementID, at)
		if err != nil {
			return err
		}
		if !ok {
			// 并发结算已抢先完成，回滚本次划转
			return domain.ErrObligationNotPending
		}
		if err := o.Settle(movementID, at); err != nil {
			return err
		}
		settled = o
		return nil
	})

	switch {
	case err != nil:
		s.metrics.RecordSettlement(typ.String(), "ERROR")
		logger.Warn(ctx, "settlement refused",
			"obligation_id", obligationID,
			"payer", payerID,
			"error", err,
		)
		return nil, err
	case rejected != nil:
		s.metrics.RecordSettlement(typ.String(), "REJECTED")
		logger.Warn(ctx, "settlement payment rejected, obligation stays pending",
			"obligation_id", obligationID,
			"payer", payerID,
			"error", rejected,
		)
		return nil, rejected
	}

	s.metrics.RecordSettlement(typ.String(), settled.Status.String())
	logger.Info(ctx, "obligation settled",
		"obligation_id", settled.ObligationID,
		"payer", payerID,
		"payee", settled.IssuerID,
		"movement_id", settled.SettlementMovementID,
		"amount", settled.Amount.String(),
	)
	return settled, nil
}

// DeclineRequest 付款方拒绝收款请求
func (s *SettlementService) DeclineRequest(ctx context.Context, requestID, payerID string) (*domain.Obligation, error) {
	return s.decline(ctx, domain.ObligationTypeRequest, requestID, func(ctx context.Context, o *domain.Obligation) error {
		return s.authorizePayer(ctx, o, payerID)
	})
}

// CancelInvoice 开具人取消账单
func (s *SettlementService) CancelInvoice(ctx context.Context, invoiceID, issuerID string) (*domain.Obligation, error) {
	return s.decline(ctx, domain.ObligationTypeInvoice, invoiceID, func(_ context.Context, o *domain.Obligation) error {
		if o.IssuerID != issuerID {
			return domain.ErrNotObligationIssuer
		}
		return nil
	})
}

func (s *SettlementService) decline(ctx context.Context, typ domain.ObligationType, obligationID string, authorize func(context.Context, *domain.Obligation) error) (*domain.Obligation, error) {
	var declined *domain.Obligation
	err := s.uow.InTx(ctx, func(ctx context.Context) error {
		o, err := s.load(ctx, typ, obligationID)
		if err != nil {
			return err
		}
		if !o.IsPending() {
			return domain.ErrObligationNotPending
		}
		if err := authorize(ctx, o); err != nil {
			return err
		}

		at := s.now()
		ok, err := s.repo.TransitionStatus(ctx, o.ObligationID, domain.ObligationStatusPending, domain.ObligationStatusDeclined, "", at)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrObligationNotPending
		}
		if err := o.Decline(at); err != nil {
			return err
		}
		declined = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSettlement(typ.String(), declined.Status.String())
	logger.Info(ctx, "obligation declined", "obligation_id", obligationID, "type", typ)
	return declined, nil
}

// Incoming accountID 待支付的义务单
func (s *SettlementService) Incoming(ctx context.Context, accountID string) ([]*domain.Obligation, error) {
	email, err := s.directory.EmailOf(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListIncoming(ctx, accountID, email)
}

// Issued accountID 开具的义务单
func (s *SettlementService) Issued(ctx context.Context, accountID string) ([]*domain.Obligation, error) {
	return s.repo.ListIssued(ctx, accountID)
}

// load 类型不匹配视为不存在
func (s *SettlementService) load(ctx context.Context, typ domain.ObligationType, obligationID string) (*domain.Obligation, error) {
	o, err := s.repo.Get(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	if o.Type != typ {
		return nil, domain.ErrObligationNotFound
	}
	return o, nil
}

// authorizePayer 请求按付款账户 ID 校验，账单按客户邮箱解析出的账户校验
func (s *SettlementService) authorizePayer(ctx context.Context, o *domain.Obligation, payerID string) error {
	if payerID == "" || payerID == o.IssuerID {
		return domain.ErrNotObligationPayer
	}
	if o.Type == domain.ObligationTypeRequest {
		if o.PayerID != payerID {
			return domain.ErrNotObligationPayer
		}
		return nil
	}

	customerID, err := s.resolver.ResolveAccountID(ctx, o.PayerEmail)
	if err != nil {
		logger.Warn(ctx, "invoice customer could not be resolved", "obligation_id", o.ObligationID, "error", err)
		return domain.ErrNotObligationPayer
	}
	if customerID != payerID {
		return domain.ErrNotObligationPayer
	}
	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil || !domain.ValidAmount(amount) {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	return amount, nil
}
