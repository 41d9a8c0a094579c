package api

import (
	"errors"
	"net/http"
	"strings"

	"bot-core/internal/allocator"
	"bot-core/internal/bot"
	"bot-core/internal/kyc"
	"bot-core/internal/ledger"
	"bot-core/internal/wallet"
	"bot-core/pkg/db"

	"github.com/gin-gonic/gin"
)

type launchBotRequest struct {
	TemplateID string  `json:"template_id" binding:"required,min=1"`
	Currency   string  `json:"currency" binding:"required,min=1"`
	Amount     float64 `json:"amount" binding:"gt=0"`
}

type depositAddressRequest struct {
	Currency string `json:"currency" binding:"required,min=1"`
	Network  string `json:"network" binding:"required,min=1"`
}

type depositRequest struct {
	Currency string  `json:"currency" binding:"required,min=1"`
	Amount   float64 `json:"amount" binding:"gt=0"`
}

type withdrawRequest struct {
	Currency    string  `json:"currency" binding:"required,min=1"`
	Amount      float64 `json:"amount" binding:"gt=0"`
	Destination string  `json:"destination" binding:"required,min=1"`
}

type submitKycRequest struct {
	DocType string `json:"doc_type" binding:"required,min=1"`
}

type reviewKycRequest struct {
	UserID  string `json:"user_id" binding:"required,min=1"`
	Level   int    `json:"level" binding:"required,gt=0"`
	DocType string `json:"doc_type" binding:"required,min=1"`
	Status  string `json:"status" binding:"required,oneof=approved rejected"`
}

type listTransactionsQuery struct {
	Limit int `form:"limit"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondServiceError maps service-layer sentinels onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bot.ErrInvalidAmount):
		respondError(c, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
	case errors.Is(err, bot.ErrKycLimitExceeded),
		errors.Is(err, wallet.ErrKycLimitExceeded):
		respondError(c, http.StatusForbidden, "KYC_LIMIT_EXCEEDED", err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		respondError(c, http.StatusBadRequest, "INSUFFICIENT_BALANCE", err.Error())
	case errors.Is(err, ledger.ErrWalletHalted):
		respondError(c, http.StatusConflict, "WALLET_HALTED", err.Error())
	case errors.Is(err, ledger.ErrBusy):
		respondError(c, http.StatusTooManyRequests, "BUSY", "wallet busy, retry shortly")
	case errors.Is(err, bot.ErrNotFound),
		errors.Is(err, db.ErrNotFound),
		errors.Is(err, ledger.ErrWalletNotFound),
		errors.Is(err, allocator.ErrWalletNotFound),
		errors.Is(err, wallet.ErrUserNotFound),
		errors.Is(err, kyc.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, kyc.ErrInvalidLevel),
		errors.Is(err, kyc.ErrInvalidStatus):
		respondError(c, http.StatusBadRequest, "INVALID_KYC_REQUEST", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

// ----------------------------------------
// System
// ----------------------------------------

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"version":       s.Meta.Version,
		"tick_interval": s.Meta.TickInterval.String(),
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

// ----------------------------------------
// Bot lifecycle
// ----------------------------------------

func (s *Server) listTemplates(c *gin.Context) {
	templates, err := s.Bots.ListAvailable(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

func (s *Server) listBots(c *gin.Context) {
	instances, err := s.Bots.ListAll(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bots": instances})
}

func (s *Server) listActiveBots(c *gin.Context) {
	instances, err := s.Bots.ListActive(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bots": instances})
}

func (s *Server) launchBot(c *gin.Context) {
	var req launchBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}

	inst, err := s.Bots.Launch(c.Request.Context(), CurrentUserID(c), req.TemplateID, strings.ToUpper(req.Currency), req.Amount)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	s.Metrics.IncrementLaunches()
	c.JSON(http.StatusCreated, gin.H{"bot": inst})
}

func (s *Server) stopBot(c *gin.Context) {
	inst, err := s.Bots.Stop(c.Request.Context(), c.Param("id"), CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	s.Metrics.IncrementStops()
	c.JSON(http.StatusOK, gin.H{"bot": inst})
}

// ----------------------------------------
// Wallets & ledger
// ----------------------------------------

func (s *Server) getWallets(c *gin.Context) {
	views, err := s.Wallets.Wallets(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallets": views})
}

func (s *Server) getTransactions(c *gin.Context) {
	var q listTransactionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}

	txs, err := s.Wallets.Transactions(c.Request.Context(), CurrentUserID(c), q.Limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (s *Server) generateDepositAddress(c *gin.Context) {
	var req depositAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}

	ctx := c.Request.Context()
	w, err := s.Ledger.GetOrCreateWallet(ctx, CurrentUserID(c), strings.ToUpper(req.Currency))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	addr, err := s.Allocator.Allocate(ctx, w.ID, strings.ToUpper(req.Network))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	s.Metrics.IncrementAllocations()
	c.JSON(http.StatusOK, gin.H{"address": addr})
}

func (s *Server) settleDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}

	row, balance, err := s.Wallets.SettleDeposit(c.Request.Context(), CurrentUserID(c), strings.ToUpper(req.Currency), req.Amount)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": row, "balance": balance})
}

func (s *Server) withdraw(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}

	row, balance, err := s.Wallets.Withdraw(c.Request.Context(), CurrentUserID(c), strings.ToUpper(req.Currency), req.Amount, req.Destination)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	s.Metrics.IncrementWithdrawals()
	c.JSON(http.StatusCreated, gin.H{"transaction": row, "balance": balance})
}

// ----------------------------------------
// KYC
// ----------------------------------------

func (s *Server) getKycStatus(c *gin.Context) {
	status, err := s.Kyc.StatusFor(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) submitKycDocument(c *gin.Context) {
	var req submitKycRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}

	rec, err := s.Kyc.SubmitDocument(c.Request.Context(), CurrentUserID(c), req.DocType)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"record": rec})
}

// reviewKycDocument is the callback surface for the verification collaborator.
func (s *Server) reviewKycDocument(c *gin.Context) {
	var req reviewKycRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}

	if err := s.Kyc.ReviewDocument(c.Request.Context(), req.UserID, req.Level, req.DocType, req.Status); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reviewed"})
}
