package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel-mess/backend/config"
	"hostel-mess/backend/internal/dto"
	"hostel-mess/backend/internal/model"
	"hostel-mess/backend/internal/payment"
	"hostel-mess/backend/internal/repository"
	pkgerrors "hostel-mess/backend/pkg/errors"
	"hostel-mess/backend/pkg/metrics"
	"hostel-mess/backend/pkg/redis"
)

// ── 支付模块业务错误 ──

var (
	ErrAlreadyPaid          = errors.New("账单已支付")           // 终态，不可重试
	ErrAmountMismatch       = errors.New("金额与账单不一致")     // 客户端需重新拉取账单后重试
	ErrProcessorRejected    = errors.New("支付被处理器拒绝")     // 可用新意图重试
	ErrPaymentNotReady      = errors.New("支付尚未完成处理")     // 稍后重试确认
	ErrProcessorUnavailable = errors.New("支付处理器暂不可用")   // 可退避重试
	ErrIntentNotFound       = errors.New("支付意图不存在")
	ErrNotBillOwner         = errors.New("无权操作他人账单")
)

// PaymentService 支付编排业务接口
// 负责把账单从 pending 驱动到 paid，保证恰好一次的终态提交
type PaymentService interface {
	CreateIntent(ctx context.Context, studentID string, req *dto.CreateIntentRequest) (*dto.IntentResponse, error)
	ConfirmLocal(ctx context.Context, studentID, intentID string) (*dto.PaymentAttemptResponse, error)
	// ReconcileAsync 处理器推送事件的幂等处理器：重复投递与被取代的意图
	// 都被安全吸收（记日志，不对外报错）
	ReconcileAsync(ctx context.Context, event *dto.WebhookEvent) error
	// SweepStaleAttempts 收尾停留在 created 状态过久的尝试，
	// 避免处理器侧已成功却始终未被本地确认的意图泄漏
	SweepStaleAttempts(ctx context.Context) (int, error)
}

// eventDeduper Webhook 事件去重能力，由 pkg/redis.Client 提供
type eventDeduper interface {
	MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ClearEventSeen(ctx context.Context, eventID string) error
}

type paymentService struct {
	repo      *repository.Repository
	processor payment.Processor
	dedup     eventDeduper // 可为 nil：事件去重降级为纯幂等逻辑
	staleAge  time.Duration
	logger    *zap.Logger
}

// NewPaymentService 创建 PaymentService 实例
func NewPaymentService(cfg *config.PaymentConfig, repo *repository.Repository, processor payment.Processor, rdb *redis.Client, logger *zap.Logger) PaymentService {
	staleAge := cfg.StaleAttemptAge
	if staleAge <= 0 {
		staleAge = 30 * time.Minute
	}
	s := &paymentService{
		repo:      repo,
		processor: processor,
		staleAge:  staleAge,
		logger:    logger,
	}
	if rdb != nil {
		s.dedup = rdb
	}
	return s
}

// ────────────────────── CreateIntent ──────────────────────

func (s *paymentService) CreateIntent(ctx context.Context, studentID string, req *dto.CreateIntentRequest) (*dto.IntentResponse, error) {
	bill, err := s.repo.Bill.GetByID(ctx, req.BillID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBillNotFound
		}
		s.logger.Error("查询账单失败", zap.String("bill_id", req.BillID), zap.Error(err))
		return nil, err
	}

	if bill.StudentID != studentID {
		return nil, ErrNotBillOwner
	}
	if bill.Status == model.BillPaid {
		return nil, ErrAlreadyPaid
	}
	// 客户端缓存的总额已过期（账单在其间被重生成）
	if req.ExpectedAmount != bill.TotalAmount {
		return nil, ErrAmountMismatch
	}

	ref, err := s.processor.CreateIntent(ctx, bill.TotalAmount, bill.Currency)
	if err != nil {
		s.logger.Warn("处理器创建意图失败",
			zap.String("bill_id", bill.BillID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}

	// 金额在此刻快照：账单其后被改动时，确认阶段会以 AmountMismatch 拦截
	attempt := &model.PaymentAttempt{
		BillID:    bill.BillID,
		IntentID:  ref.ID,
		Amount:    bill.TotalAmount,
		Currency:  bill.Currency,
		State:     model.AttemptCreated,
		CreatedBy: studentID,
	}
	if err := s.repo.PaymentAttempt.Create(ctx, attempt); err != nil {
		s.logger.Error("落库支付尝试失败",
			zap.String("bill_id", bill.BillID),
			zap.String("intent_id", ref.ID),
			zap.Error(err),
		)
		return nil, err
	}

	return &dto.IntentResponse{
		IntentID:     ref.ID,
		ClientSecret: ref.ClientSecret,
		BillID:       bill.BillID,
		Amount:       attempt.Amount,
		Currency:     attempt.Currency,
		State:        attempt.State,
	}, nil
}

// ────────────────────── ConfirmLocal ──────────────────────

func (s *paymentService) ConfirmLocal(ctx context.Context, studentID, intentID string) (*dto.PaymentAttemptResponse, error) {
	attempt, err := s.repo.PaymentAttempt.GetByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}

	bill, err := s.repo.Bill.GetByID(ctx, attempt.BillID)
	if err != nil {
		return nil, err
	}
	if bill.StudentID != studentID {
		return nil, ErrNotBillOwner
	}
	if bill.Status == model.BillPaid {
		// Webhook 已先行提交（如客户端离线期间）：定论式回应，不重复扣款
		return nil, ErrAlreadyPaid
	}
	// 防御性校验：意图创建后账单总额被改动则拒绝按旧金额提交
	if attempt.Amount != bill.TotalAmount {
		return nil, ErrAmountMismatch
	}

	status, err := s.processor.GetIntentStatus(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}

	switch status {
	case payment.StatusSucceeded:
		if err := s.commitPaid(ctx, attempt, "confirm_local"); err != nil {
			return nil, err
		}
	case payment.StatusFailed:
		s.markAttemptFailed(ctx, attempt)
		return nil, ErrProcessorRejected
	default: // processing
		return nil, ErrPaymentNotReady
	}

	confirmed, err := s.repo.PaymentAttempt.GetByIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	return toAttemptResponse(confirmed), nil
}

// ────────────────────── ReconcileAsync ──────────────────────

func (s *paymentService) ReconcileAsync(ctx context.Context, event *dto.WebhookEvent) error {
	// 事件去重是快路径优化；真正的幂等由下面的条件提交保证，
	// Redis 不可用时直接走幂等逻辑
	marked := false
	if s.dedup != nil {
		first, err := s.dedup.MarkEventSeen(ctx, event.EventID, 24*time.Hour)
		if err == nil && !first {
			s.logger.Debug("重复投递的 Webhook 事件", zap.String("event_id", event.EventID))
			return nil
		}
		marked = err == nil
	}

	if err := s.reconcile(ctx, event); err != nil {
		// 出错时入口回应 5xx、处理器会重投；去重标记必须先撤销，
		// 否则重投在入口就被当作重复事件吸收，成功事件在 TTL 内永久丢失
		if marked {
			if clearErr := s.dedup.ClearEventSeen(ctx, event.EventID); clearErr != nil {
				s.logger.Warn("撤销事件去重标记失败",
					zap.String("event_id", event.EventID),
					zap.Error(clearErr),
				)
			}
		}
		return err
	}
	return nil
}

func (s *paymentService) reconcile(ctx context.Context, event *dto.WebhookEvent) error {
	attempt, err := s.repo.PaymentAttempt.GetByIntentID(ctx, event.IntentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 未知意图：对账冲突，吸收并记录
			s.absorbConflict("unknown_intent", event)
			return nil
		}
		return err
	}

	bill, err := s.repo.Bill.GetByID(ctx, attempt.BillID)
	if err != nil {
		return err
	}
	if bill.Status == model.BillPaid {
		// 重复投递或本地确认已先行提交：安全空操作
		return nil
	}

	// 意图已被新的重试取代：不得用旧意图提交
	latest, err := s.repo.PaymentAttempt.GetLatestByBill(ctx, attempt.BillID)
	if err != nil {
		return err
	}
	if latest.IntentID != event.IntentID {
		s.absorbConflict("superseded_intent", event)
		return nil
	}

	switch payment.Status(event.Status) {
	case payment.StatusSucceeded:
		if attempt.Amount != bill.TotalAmount {
			s.absorbConflict("amount_drift", event)
			return nil
		}
		if err := s.commitPaid(ctx, attempt, "reconcile_async"); err != nil {
			if errors.Is(err, ErrAlreadyPaid) {
				// 与同步确认并发竞争落败：恰好一次已由赢家保证
				return nil
			}
			return err
		}
	case payment.StatusFailed:
		s.markAttemptFailed(ctx, attempt)
	}
	// processing 事件不携带可提交的信息，忽略

	return nil
}

// ────────────────────── SweepStaleAttempts ──────────────────────

func (s *paymentService) SweepStaleAttempts(ctx context.Context) (int, error) {
	stale, err := s.repo.PaymentAttempt.ListStaleCreated(ctx, time.Now().Add(-s.staleAge), 100)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range stale {
		attempt := &stale[i]

		status, err := s.processor.GetIntentStatus(ctx, attempt.IntentID)
		if err != nil {
			s.logger.Warn("对账扫描查询意图失败",
				zap.String("intent_id", attempt.IntentID),
				zap.Error(err),
			)
			continue
		}

		switch status {
		case payment.StatusSucceeded:
			// 处理器侧已成功但本地从未确认：补提交
			if err := s.commitPaid(ctx, attempt, "sweep"); err != nil && !errors.Is(err, ErrAlreadyPaid) {
				s.logger.Error("对账扫描补提交失败",
					zap.String("intent_id", attempt.IntentID),
					zap.Error(err),
				)
				continue
			}
			processed++
		case payment.StatusFailed:
			s.markAttemptFailed(ctx, attempt)
			processed++
		}
		// processing 的继续等待下一轮
	}

	if processed > 0 {
		s.logger.Info("对账扫描完成", zap.Int("processed", processed), zap.Int("scanned", len(stale)))
	}
	return processed, nil
}

// ── 内部辅助方法 ──

// commitPaid 系统唯一的临界区：账单 pending → paid 的条件更新。
// 同步确认与异步回调竞争时由数据库裁决出唯一赢家，
// 落败方拿到 ErrAlreadyPaid 而不是重复入账。
func (s *paymentService) commitPaid(ctx context.Context, attempt *model.PaymentAttempt, path string) error {
	now := time.Now()

	err := s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if err := txRepo.Bill.MarkPaid(ctx, attempt.BillID, now, attempt.IntentID); err != nil {
			if errors.Is(err, pkgerrors.ErrOptimisticLock) {
				return ErrAlreadyPaid
			}
			return err
		}

		if err := txRepo.PaymentAttempt.UpdateState(ctx, attempt.AttemptID, model.AttemptCreated, model.AttemptConfirmed, &now); err != nil {
			// 尝试可能已被对账扫描标记为 failed，但处理器给出了最终的 succeeded
			if errors.Is(err, pkgerrors.ErrOptimisticLock) {
				err = txRepo.PaymentAttempt.UpdateState(ctx, attempt.AttemptID, model.AttemptFailed, model.AttemptConfirmed, &now)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.PaymentCommitsTotal.WithLabelValues(path).Inc()
	s.logger.Info("账单支付已确认",
		zap.String("bill_id", attempt.BillID),
		zap.String("intent_id", attempt.IntentID),
		zap.Int64("amount", attempt.Amount),
		zap.String("path", path),
	)
	return nil
}

// markAttemptFailed 标记尝试失败；账单保持 pending，可用新意图重试
func (s *paymentService) markAttemptFailed(ctx context.Context, attempt *model.PaymentAttempt) {
	err := s.repo.PaymentAttempt.UpdateState(ctx, attempt.AttemptID, model.AttemptCreated, model.AttemptFailed, nil)
	if err != nil && !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		s.logger.Error("标记支付尝试失败出错",
			zap.String("intent_id", attempt.IntentID),
			zap.Error(err),
		)
	}
}

// absorbConflict 对账冲突不对外暴露：计数 + 日志后吸收
func (s *paymentService) absorbConflict(kind string, event *dto.WebhookEvent) {
	metrics.ReconcileConflictsTotal.Inc()
	s.logger.Warn("对账冲突已吸收",
		zap.String("kind", kind),
		zap.String("event_id", event.EventID),
		zap.String("intent_id", event.IntentID),
		zap.String("status", event.Status),
	)
}

func toAttemptResponse(attempt *model.PaymentAttempt) *dto.PaymentAttemptResponse {
	resp := &dto.PaymentAttemptResponse{
		AttemptID: attempt.AttemptID,
		BillID:    attempt.BillID,
		IntentID:  attempt.IntentID,
		Amount:    attempt.Amount,
		Currency:  attempt.Currency,
		State:     attempt.State,
	}
	if attempt.ConfirmedAt != nil {
		formatted := attempt.ConfirmedAt.Format(time.RFC3339)
		resp.ConfirmedAt = &formatted
	}
	return resp
}
