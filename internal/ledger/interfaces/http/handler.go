package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	accountdomain "github.com/wyfcoding/walletledger/internal/account/domain"
	"github.com/wyfcoding/walletledger/internal/ledger/application"
	"github.com/wyfcoding/walletledger/internal/ledger/domain"
	"github.com/wyfcoding/walletledger/pkg/logger"
)

// IdentityResolver 把邮箱解析为账户 ID
type IdentityResolver interface {
	ResolveAccountID(ctx context.Context, email string) (string, error)
}

// LedgerHandler HTTP 处理器
type LedgerHandler struct {
	engine   *application.TransferEngine
	query    *application.LedgerQueryService
	resolver IdentityResolver
}

// NewLedgerHandler 创建 HTTP 处理器
func NewLedgerHandler(engine *application.TransferEngine, query *application.LedgerQueryService, resolver IdentityResolver) *LedgerHandler {
	return &LedgerHandler{engine: engine, query: query, resolver: resolver}
}

// RegisterRoutes 注册路由
func (h *LedgerHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.POST("/transfers", h.Transfer)
		api.POST("/accounts/:id/deposit", h.Deposit)
		api.POST("/accounts/:id/withdraw", h.Withdraw)
		api.GET("/accounts/:id/balance", h.GetBalance)
		api.GET("/accounts/:id/movements", h.GetHistory)
	}
}

// TransferRequest 转账请求，to_account 与 to_email 二选一
type TransferRequest struct {
	FromAccount string `json:"from_account" binding:"required"`
	ToAccount   string `json:"to_account"`
	ToEmail     string `json:"to_email"`
	Amount      string `json:"amount" binding:"required"`
}

// AmountRequest 充值/提现请求
type AmountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// Transfer 转账
func (h *LedgerHandler) Transfer(c *gin.Context) {
	ctx := c.Request.Context()

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	receiver := req.ToAccount
	if receiver == "" {
		if req.ToEmail == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to_account or to_email is required"})
			return
		}
		receiver, err = h.resolver.ResolveAccountID(ctx, req.ToEmail)
		if err != nil {
			writeError(c, "Failed to resolve receiver", err)
			return
		}
	}

	m, err := h.engine.Transfer(ctx, req.FromAccount, receiver, amount)
	if err != nil {
		writeError(c, "Transfer failed", err)
		return
	}
	c.JSON(http.StatusCreated, application.ToMovementDTO(m))
}

// Deposit 充值
func (h *LedgerHandler) Deposit(c *gin.Context) {
	h.single(c, h.engine.Deposit, "Deposit failed")
}

// Withdraw 提现
func (h *LedgerHandler) Withdraw(c *gin.Context) {
	h.single(c, h.engine.Withdraw, "Withdraw failed")
}

func (h *LedgerHandler) single(c *gin.Context, op func(context.Context, string, decimal.Decimal) (*domain.Movement, error), failMsg string) {
	accountID := c.Param("id")

	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	m, err := op(c.Request.Context(), accountID, amount)
	if err != nil {
		writeError(c, failMsg, err)
		return
	}
	c.JSON(http.StatusCreated, application.ToMovementDTO(m))
}

// GetBalance 查询余额
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	accountID := c.Param("id")
	balance, err := h.query.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		writeError(c, "Failed to read balance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": accountID, "balance": balance.String()})
}

// GetHistory 分页查询流水
func (h *LedgerHandler) GetHistory(c *gin.Context) {
	accountID := c.Param("id")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.query.GetHistoryPage(c.Request.Context(), accountID, page, pageSize)
	if err != nil {
		writeError(c, "Failed to get history", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// StatusFor 业务错误到 HTTP 状态码的映射
func StatusFor(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeInvalidAmount, domain.CodeSelfTransfer:
		return http.StatusBadRequest
	case domain.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case domain.CodeAccountNotFound:
		return http.StatusNotFound
	}
	if errors.Is(err, accountdomain.ErrAccountNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, msg string, err error) {
	status := StatusFor(err)
	body := gin.H{"error": err.Error()}

	var le *domain.LedgerError
	if errors.As(err, &le) {
		body["code"] = le.Code
		if le.MovementID != "" {
			body["movement_id"] = le.MovementID
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), msg, "error", err)
		body["error"] = "internal error"
	}
	c.JSON(status, body)
}
