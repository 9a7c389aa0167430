package dto

// ── 支付模块 DTO ──

// CreateIntentRequest 创建支付意图请求
// ExpectedAmount 为客户端当前展示的账单总额，用于识别过期缓存
type CreateIntentRequest struct {
	BillID         string `json:"bill_id"         binding:"required,uuid"`
	ExpectedAmount int64  `json:"expected_amount" binding:"required,min=1"`
}

// IntentResponse 支付意图响应
type IntentResponse struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	BillID       string `json:"bill_id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	State        string `json:"state"`
}

// PaymentAttemptResponse 支付尝试响应
type PaymentAttemptResponse struct {
	AttemptID   string  `json:"attempt_id"`
	BillID      string  `json:"bill_id"`
	IntentID    string  `json:"intent_id"`
	Amount      int64   `json:"amount"`
	Currency    string  `json:"currency"`
	State       string  `json:"state"`
	ConfirmedAt *string `json:"confirmed_at,omitempty"`
}

// WebhookEvent 处理器推送的状态事件（至少一次投递）
type WebhookEvent struct {
	EventID  string `json:"event_id"  binding:"required"`
	IntentID string `json:"intent_id" binding:"required"`
	Status   string `json:"status"    binding:"required,oneof=processing succeeded failed"`
}
