package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/wallet-ledger/internal/limits"
	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/richardliu001/wallet-ledger/internal/repo"
	"github.com/richardliu001/wallet-ledger/internal/service"
	"github.com/shopspring/decimal"
)

// Initiator accepts transfers; satisfied by *service.TransferInitiator.
type Initiator interface {
	Initiate(ctx context.Context, req service.TransferRequest) (*service.TransferReceipt, error)
}

// Wallets serves the synchronous paths; satisfied by *service.WalletService.
type Wallets interface {
	Deposit(ctx context.Context, userID uint64, amt decimal.Decimal, currency, description string) (*service.OperationResult, error)
	Withdraw(ctx context.Context, userID uint64, amt decimal.Decimal, currency, description string) (*service.OperationResult, error)
	GetBalance(ctx context.Context, userID uint64) (decimal.Decimal, error)
	GetTransaction(ctx context.Context, userID uint64, referenceID string) (*model.Transaction, error)
	GetHistory(ctx context.Context, userID uint64, limit int, since time.Time) ([]model.Transaction, error)
	UpdateLimits(ctx context.Context, userID uint64, upd service.LimitsUpdate) (*model.Wallet, error)
}

func RegisterHandlers(r *gin.Engine, initiator Initiator, wallets Wallets) {
	v1 := r.Group("/v1", AuthMiddleware())
	{
		v1.POST("/transfers", transferHandler(initiator))
		v1.GET("/transactions/:ref", transactionHandler(wallets))
		v1.POST("/wallets/deposit", depositHandler(wallets))
		v1.POST("/wallets/withdraw", withdrawHandler(wallets))
		v1.GET("/wallets/balance", balanceHandler(wallets))
		v1.GET("/wallets/history", historyHandler(wallets))
		v1.PUT("/wallets/limits", limitsHandler(wallets))
	}
}

type transferReq struct {
	ReceiverWalletNumber string `json:"receiver_wallet_number" binding:"required"`
	Amount               string `json:"amount" binding:"required"`
	Currency             string `json:"currency"`
	Description          string `json:"description"`
}

func transferHandler(initiator Initiator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transferReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		rcpt, err := initiator.Initiate(c, service.TransferRequest{
			SenderUserID:         userID(c),
			ReceiverWalletNumber: req.ReceiverWalletNumber,
			Amount:               amt,
			Currency:             req.Currency,
			Description:          req.Description,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, rcpt)
	}
}

func transactionHandler(wallets Wallets) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := wallets.GetTransaction(c, userID(c), c.Param("ref"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

type operationReq struct {
	Amount      string `json:"amount" binding:"required"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type operationFunc func(ctx context.Context, userID uint64, amt decimal.Decimal, currency, description string) (*service.OperationResult, error)

func operationHandler(op operationFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req operationReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		res, err := op(c, userID(c), amt, req.Currency, req.Description)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func depositHandler(wallets Wallets) gin.HandlerFunc { return operationHandler(wallets.Deposit) }

func withdrawHandler(wallets Wallets) gin.HandlerFunc { return operationHandler(wallets.Withdraw) }

func balanceHandler(wallets Wallets) gin.HandlerFunc {
	return func(c *gin.Context) {
		bal, err := wallets.GetBalance(c, userID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal})
	}
}

func historyHandler(wallets Wallets) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		sinceStr := c.DefaultQuery("since", time.Now().Add(-24*time.Hour).Format(time.RFC3339))
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		txs, err := wallets.GetHistory(c, userID(c), limit, since)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}

type limitsReq struct {
	TransactionLimit *string `json:"transaction_limit"`
	DailyLimit       *string `json:"daily_limit"`
}

func parseLimit(v *string) (*decimal.Decimal, error) {
	if v == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func limitsHandler(wallets Wallets) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req limitsReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.TransactionLimit == nil && req.DailyLimit == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no limit given"})
			return
		}
		perTx, err := parseLimit(req.TransactionLimit)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction_limit"})
			return
		}
		daily, err := parseLimit(req.DailyLimit)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid daily_limit"})
			return
		}
		w, err := wallets.UpdateLimits(c, userID(c), service.LimitsUpdate{TransactionLimit: perTx, DailyLimit: daily})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

// writeError maps service errors onto HTTP statuses. Limit violations also
// report which cap was hit.
func writeError(c *gin.Context, err error) {
	var violation *limits.ViolationError
	if errors.As(err, &violation) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "violation": violation.Kind})
		return
	}
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrReceiverRequired),
		errors.Is(err, service.ErrSelfTransfer),
		errors.Is(err, service.ErrCurrencyMismatch),
		errors.Is(err, service.ErrInvalidLimit):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, service.ErrSenderNotFound),
		errors.Is(err, service.ErrReceiverNotFound),
		errors.Is(err, service.ErrWalletNotFound),
		errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrWalletInactive),
		errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrSettlementDeferred):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
