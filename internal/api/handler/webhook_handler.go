package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"hostel-mess/backend/config"
	"hostel-mess/backend/internal/dto"
	"hostel-mess/backend/internal/service"
	"hostel-mess/backend/pkg/response"
)

// 处理器回调携带的签名头
const signatureHeader = "X-Mess-Signature"

// WebhookHandler 支付处理器回调处理器
// 处理器侧认证（HMAC 签名），不走用户 JWT
type WebhookHandler struct {
	secret     []byte
	paymentSvc service.PaymentService
}

// NewWebhookHandler 创建 WebhookHandler
func NewWebhookHandler(cfg *config.PaymentConfig, paymentSvc service.PaymentService) *WebhookHandler {
	return &WebhookHandler{
		secret:     []byte(cfg.WebhookSecret),
		paymentSvc: paymentSvc,
	}
}

// HandleEvent 接收处理器推送的意图状态事件
// POST /api/v1/payments/webhook
// 投递语义为至少一次：重复与乱序事件由 ReconcileAsync 幂等吸收，
// 对账冲突一律返回 200，避免处理器无意义地重投
func (h *WebhookHandler) HandleEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, 10001, "读取请求体失败")
		return
	}

	if !h.verifySignature(body, c.GetHeader(signatureHeader)) {
		response.Unauthorized(c, 13101, "签名校验失败")
		return
	}

	var event dto.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		response.BadRequest(c, 10001, "事件格式无效")
		return
	}
	if event.EventID == "" || event.IntentID == "" || !validEventStatus(event.Status) {
		response.BadRequest(c, 10001, "事件字段缺失或无效")
		return
	}

	if err := h.paymentSvc.ReconcileAsync(c.Request.Context(), &event); err != nil {
		// 数据库级失败才报 500，让处理器按策略重投
		response.InternalError(c)
		return
	}

	response.OK(c, nil)
}

// verifySignature 校验 HMAC-SHA256 签名（十六进制编码）
func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func validEventStatus(status string) bool {
	switch status {
	case "processing", "succeeded", "failed":
		return true
	}
	return false
}
