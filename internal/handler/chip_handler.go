package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/uniqn/chip-service/internal/logic"
)

// ChipHandler 筹码处理器
type ChipHandler struct {
	ledgerLogic *logic.LedgerLogic
	chipLogic   *logic.ChipLogic
}

// NewChipHandler 创建筹码处理器
func NewChipHandler(ledgerLogic *logic.LedgerLogic, chipLogic *logic.ChipLogic) *ChipHandler {
	return &ChipHandler{
		ledgerLogic: ledgerLogic,
		chipLogic:   chipLogic,
	}
}

// GetBalance 获取筹码余额
func (h *ChipHandler) GetBalance(c *gin.Context) {
	userId := c.GetString("userId")

	balance, err := h.ledgerLogic.GetBalance(userId)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "获取筹码余额成功", ToBalanceResponse(balance))
}

// GetTransactions 获取筹码流水
func (h *ChipHandler) GetTransactions(c *gin.Context) {
	userId := c.GetString("userId")
	txType := c.Query("type")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	txs, total, err := h.ledgerLogic.GetTransactions(userId, txType, page, pageSize)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "获取筹码流水成功", GetTransactionsResponse{
		Transactions: ToTransactionResponseList(txs),
		Pagination:   NewPagination(page, pageSize, total),
	})
}

// UseChips 消耗筹码
func (h *ChipHandler) UseChips(c *gin.Context) {
	var req UseChipsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}

	userId := c.GetString("userId")
	balance, err := h.chipLogic.Deduct(userId, req.Amount, req.Reason)
	if err != nil {
		ErrorFrom(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "筹码消耗成功", ToBalanceResponse(balance))
}
