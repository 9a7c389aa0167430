package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"hostel-mess/backend/internal/dto"
	"hostel-mess/backend/internal/service"
	"hostel-mess/backend/pkg/response"
)

// PaymentHandler 支付模块 HTTP 处理器
type PaymentHandler struct {
	paymentSvc service.PaymentService
}

// NewPaymentHandler 创建 PaymentHandler
func NewPaymentHandler(paymentSvc service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// CreateIntent 创建支付意图
// POST /api/v1/payments/intents
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req dto.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	intent, err := h.paymentSvc.CreateIntent(c.Request.Context(), studentID, &req)
	if err != nil {
		h.handlePaymentError(c, err)
		return
	}

	response.Created(c, intent)
}

// ConfirmLocal 客户端完成处理器侧挑战后的同步确认
// POST /api/v1/payments/intents/:id/confirm
func (h *PaymentHandler) ConfirmLocal(c *gin.Context) {
	intentID := c.Param("id")
	if intentID == "" {
		response.BadRequest(c, 10001, "意图ID不能为空")
		return
	}

	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	attempt, err := h.paymentSvc.ConfirmLocal(c.Request.Context(), studentID, intentID)
	if err != nil {
		h.handlePaymentError(c, err)
		return
	}

	response.OK(c, attempt)
}

// handlePaymentError 统一处理支付模块业务错误
func (h *PaymentHandler) handlePaymentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrBillNotFound):
		response.NotFound(c, 12001, "账单不存在")
	case errors.Is(err, service.ErrIntentNotFound):
		response.NotFound(c, 13001, "支付意图不存在")
	case errors.Is(err, service.ErrNotBillOwner):
		response.Forbidden(c, 13002, "无权操作他人账单")
	case errors.Is(err, service.ErrAlreadyPaid):
		response.Conflict(c, 13003, "账单已支付")
	case errors.Is(err, service.ErrAmountMismatch):
		response.Conflict(c, 13004, "金额与账单不一致，请刷新后重试")
	case errors.Is(err, service.ErrProcessorRejected):
		response.BadRequest(c, 13005, "支付被处理器拒绝，可重新发起")
	case errors.Is(err, service.ErrPaymentNotReady):
		response.Conflict(c, 13006, "支付尚未完成处理，请稍后确认")
	case errors.Is(err, service.ErrProcessorUnavailable):
		response.BadGateway(c, 13007, "支付处理器暂不可用，请稍后重试")
	default:
		response.InternalError(c)
	}
}
