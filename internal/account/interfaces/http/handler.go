package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/walletledger/internal/account/application"
	"github.com/wyfcoding/walletledger/internal/account/domain"
	"github.com/wyfcoding/walletledger/pkg/logger"
)

// AccountHandler HTTP 处理器
type AccountHandler struct {
	accountService *application.AccountService
}

// NewAccountHandler 创建 HTTP 处理器
func NewAccountHandler(accountService *application.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// RegisterRoutes 注册路由
func (h *AccountHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.POST("/accounts", h.OpenAccount)
		api.GET("/accounts/:id", h.GetAccount)
		api.GET("/accounts", h.LookupAccount)
	}
}

// OpenAccount 开户
func (h *AccountHandler) OpenAccount(c *gin.Context) {
	var req application.OpenAccountCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accountService.Open(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Failed to open account", err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

// GetAccount 按 ID 查询账户
func (h *AccountHandler) GetAccount(c *gin.Context) {
	account, err := h.accountService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get account", err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// LookupAccount 按邮箱查询账户：GET /accounts?email=
func (h *AccountHandler) LookupAccount(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	account, err := h.accountService.GetByEmail(c.Request.Context(), email)
	if err != nil {
		h.fail(c, "Failed to look up account", err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) fail(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidEmail), errors.Is(err, domain.ErrInvalidName), errors.Is(err, domain.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error(c.Request.Context(), msg, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
