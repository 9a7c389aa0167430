package dto

// ── 考勤模块 DTO ──

// SelfMarkRequest 学生自助签到请求
type SelfMarkRequest struct {
	Date     string `json:"date"      binding:"required"` // "2026-09-01"，仅允许当天
	MealSlot string `json:"meal_slot" binding:"required,oneof=breakfast lunch dinner"`
}

// ManagerMarkEntry 管理员批量登记的单条目
type ManagerMarkEntry struct {
	StudentID string `json:"student_id" binding:"required,uuid"`
	Date      string `json:"date"       binding:"required"`
	MealSlot  string `json:"meal_slot"  binding:"required,oneof=breakfast lunch dinner"`
	Present   bool   `json:"present"`
}

// ManagerMarkRequest 管理员批量登记请求
type ManagerMarkRequest struct {
	Entries []ManagerMarkEntry `json:"entries" binding:"required,min=1,max=500,dive"`
}

// RejectRequest 驳回签到请求
type RejectRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// AttendanceResponse 考勤记录响应
type AttendanceResponse struct {
	ID            string  `json:"id"`
	StudentID     string  `json:"student_id"`
	Date          string  `json:"date"`
	MealSlot      string  `json:"meal_slot"`
	Present       bool    `json:"present"`
	ApprovalState string  `json:"approval_state"`
	MarkedBy      string  `json:"marked_by"`
	MarkedAt      string  `json:"marked_at"`
	ApprovedBy    *string `json:"approved_by,omitempty"`
	ApprovedAt    *string `json:"approved_at,omitempty"`
	RejectReason  *string `json:"reject_reason,omitempty"`
}

// ── 批量登记结果 ──

// 批量登记单条目结果
const (
	EntryCreated = "created"
	EntrySkipped = "skipped" // 已有记录，不覆盖学生自助签到
	EntryFailed  = "failed"
)

// EntryOutcome 批量登记中单条目的结果
type EntryOutcome struct {
	StudentID string `json:"student_id"`
	Date      string `json:"date"`
	MealSlot  string `json:"meal_slot"`
	Outcome   string `json:"outcome"` // created | skipped | failed
	Error     string `json:"error,omitempty"`
}

// BatchResultResponse 批量登记结果汇总
// 逐条上报，单条失败不中断整批
type BatchResultResponse struct {
	Created  int            `json:"created"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
	Outcomes []EntryOutcome `json:"outcomes"`
}
