package dto

// ── 账单模块 DTO ──

// GenerateRequest 账单生成请求
type GenerateRequest struct {
	Month int `json:"month" binding:"required,min=1,max=12"`
	Year  int `json:"year"  binding:"required,min=2020,max=2100"`
}

// SlotLineResponse 单餐段计费行（金额单位：派萨）
type SlotLineResponse struct {
	Count    int   `json:"count"`
	Rate     int64 `json:"rate"`
	Subtotal int64 `json:"subtotal"`
}

// BillResponse 账单响应
type BillResponse struct {
	ID          string                      `json:"id"`
	StudentID   string                      `json:"student_id"`
	Month       int                         `json:"month"`
	Year        int                         `json:"year"`
	Breakdown   map[string]SlotLineResponse `json:"breakdown"`
	TotalAmount int64                       `json:"total_amount"`
	Currency    string                      `json:"currency"`
	Status      string                      `json:"status"`
	GeneratedAt string                      `json:"generated_at"`
	PaidAt      *string                     `json:"paid_at,omitempty"`
	PaymentRef  *string                     `json:"payment_ref,omitempty"`
}

// ── 生成结果 ──

// 账单生成单学生结果
const (
	BillOutcomeCreated      = "created"
	BillOutcomeUpdated      = "updated"
	BillOutcomeSkippedPaid  = "skipped_paid" // 已支付账单冻结，跳过并上报
	BillOutcomeSkippedError = "skipped_error"
)

// StudentBillOutcome 生成批次中单个学生的结果
type StudentBillOutcome struct {
	StudentID   string `json:"student_id"`
	Outcome     string `json:"outcome"`
	TotalAmount int64  `json:"total_amount,omitempty"`
	Error       string `json:"error,omitempty"`
}

// GenerateSummaryResponse 账单生成结果汇总
// 管理端看到的是逐学生结果，而不是整批的单一成败
type GenerateSummaryResponse struct {
	Month        int                  `json:"month"`
	Year         int                  `json:"year"`
	Students     int                  `json:"students"`
	Created      int                  `json:"created"`
	Updated      int                  `json:"updated"`
	SkippedPaid  int                  `json:"skipped_paid"`
	SkippedError int                  `json:"skipped_error"`
	Outcomes     []StudentBillOutcome `json:"outcomes"`
}
