package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/wyfcoding/walletledger/internal/account/domain"
	ledgerdomain "github.com/wyfcoding/walletledger/internal/ledger/domain"
	"github.com/wyfcoding/walletledger/internal/settlement/application"
	"github.com/wyfcoding/walletledger/internal/settlement/domain"
	"github.com/wyfcoding/walletledger/pkg/logger"
)

// SettlementHandler HTTP 处理器
type SettlementHandler struct {
	svc *application.SettlementService
}

// NewSettlementHandler 创建 HTTP 处理器
func NewSettlementHandler(svc *application.SettlementService) *SettlementHandler {
	return &SettlementHandler{svc: svc}
}

// RegisterRoutes 注册路由
func (h *SettlementHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.POST("/requests", h.CreateRequest)
		api.POST("/requests/:id/settle", h.SettleRequest)
		api.POST("/requests/:id/decline", h.DeclineRequest)
		api.POST("/invoices", h.CreateInvoice)
		api.POST("/invoices/:id/settle", h.SettleInvoice)
		api.POST("/invoices/:id/cancel", h.CancelInvoice)
		api.GET("/accounts/:id/obligations/incoming", h.Incoming)
		api.GET("/accounts/:id/obligations/issued", h.Issued)
	}
}

// ActorRequest 操作人
type ActorRequest struct {
	AccountID string `json:"account_id" binding:"required"`
}

// CreateRequest 发起收款请求
func (h *SettlementHandler) CreateRequest(c *gin.Context) {
	var req application.CreateRequestCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	o, err := h.svc.CreateRequest(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Failed to create request", err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// CreateInvoice 开具账单
func (h *SettlementHandler) CreateInvoice(c *gin.Context) {
	var req application.CreateInvoiceCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	o, err := h.svc.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Failed to create invoice", err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// SettleRequest 支付收款请求，account_id 为付款方
func (h *SettlementHandler) SettleRequest(c *gin.Context) {
	h.act(c, h.svc.SettleRequest, "Failed to settle request")
}

// DeclineRequest 拒绝收款请求，account_id 为付款方
func (h *SettlementHandler) DeclineRequest(c *gin.Context) {
	h.act(c, h.svc.DeclineRequest, "Failed to decline request")
}

// SettleInvoice 支付账单，account_id 为客户
func (h *SettlementHandler) SettleInvoice(c *gin.Context) {
	h.act(c, h.svc.SettleInvoice, "Failed to settle invoice")
}

// CancelInvoice 取消账单，account_id 为开具人
func (h *SettlementHandler) CancelInvoice(c *gin.Context) {
	h.act(c, h.svc.CancelInvoice, "Failed to cancel invoice")
}

// Incoming 待支付的请求与账单
func (h *SettlementHandler) Incoming(c *gin.Context) {
	list, err := h.svc.Incoming(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to list incoming obligations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list, "total": len(list)})
}

// Issued 已开具的请求与账单
func (h *SettlementHandler) Issued(c *gin.Context) {
	list, err := h.svc.Issued(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to list issued obligations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list, "total": len(list)})
}

func (h *SettlementHandler) act(c *gin.Context, op func(ctx context.Context, obligationID, accountID string) (*domain.Obligation, error), failMsg string) {
	var req ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	o, err := op(c.Request.Context(), c.Param("id"), req.AccountID)
	if err != nil {
		h.fail(c, failMsg, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// StatusFor 结算错误到 HTTP 状态码的映射
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPaymentRejected):
		if errors.Is(err, ledgerdomain.ErrAccountNotFound) {
			return http.StatusNotFound
		}
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSelfObligation),
		errors.Is(err, domain.ErrCustomerEmail):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotObligationPayer),
		errors.Is(err, domain.ErrNotObligationIssuer),
		errors.Is(err, domain.ErrIssuerNotBusiness):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrObligationNotFound), errors.Is(err, accountdomain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrObligationNotPending):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *SettlementHandler) fail(c *gin.Context, msg string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), msg, "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	body := gin.H{"error": err.Error()}
	var le *ledgerdomain.LedgerError
	if errors.As(err, &le) {
		body["code"] = le.Code
		if le.MovementID != "" {
			body["movement_id"] = le.MovementID
		}
	}
	c.JSON(status, body)
}
