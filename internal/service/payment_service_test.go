package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"hostel-mess/backend/config"
	"hostel-mess/backend/internal/dto"
	"hostel-mess/backend/internal/model"
	"hostel-mess/backend/internal/payment"
)

// ── 测试辅助 ──

func setupTestPaymentService() (PaymentService, *mockBillRepo, *mockPaymentAttemptRepo, *mockProcessor) {
	repo, _, billRepo, payRepo := newMockRepository()
	proc := newMockProcessor()
	cfg := &config.PaymentConfig{StaleAttemptAge: 30 * time.Minute}
	svc := NewPaymentService(cfg, repo, proc, nil, zap.NewNop())
	return svc, billRepo, payRepo, proc
}

// seedPendingBill 写入一张待支付账单
func seedPendingBill(t *testing.T, billRepo *mockBillRepo, studentID string, total int64) *model.Bill {
	t.Helper()
	bill := &model.Bill{
		StudentID: studentID,
		Month:     8,
		Year:      2026,
		Breakdown: model.Breakdown{
			"lunch": {Count: int(total / 7000), Rate: 7000, Subtotal: total},
		},
		TotalAmount: total,
		Currency:    "INR",
		Status:      model.BillPending,
		GeneratedAt: time.Now(),
	}
	if err := billRepo.Create(context.Background(), bill); err != nil {
		t.Fatalf("写入账单失败: %v", err)
	}
	return bill
}

// ── CreateIntent 测试 ──

func TestPaymentService_CreateIntent_Success(t *testing.T) {
	svc, billRepo, payRepo, _ := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	req := &dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000}
	intent, err := svc.CreateIntent(context.Background(), "stu-001", req)
	if err != nil {
		t.Fatalf("CreateIntent 应成功: %v", err)
	}
	if intent.IntentID == "" || intent.ClientSecret == "" {
		t.Error("期望返回意图ID与客户端密钥")
	}
	if intent.Amount != 14000 {
		t.Errorf("期望快照金额=14000，实际=%d", intent.Amount)
	}

	attempt, err := payRepo.GetByIntentID(context.Background(), intent.IntentID)
	if err != nil {
		t.Fatalf("应落库支付尝试: %v", err)
	}
	if attempt.State != model.AttemptCreated {
		t.Errorf("期望State=created，实际=%s", attempt.State)
	}
}

func TestPaymentService_CreateIntent_NotOwner(t *testing.T) {
	svc, billRepo, _, _ := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	req := &dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000}
	_, err := svc.CreateIntent(context.Background(), "stu-999", req)
	if !errors.Is(err, ErrNotBillOwner) {
		t.Errorf("期望 ErrNotBillOwner，实际: %v", err)
	}
}

func TestPaymentService_CreateIntent_AlreadyPaid(t *testing.T) {
	svc, billRepo, _, _ := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)
	billRepo.MarkPaid(context.Background(), bill.BillID, time.Now(), "pi_old")

	req := &dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000}
	_, err := svc.CreateIntent(context.Background(), "stu-001", req)
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Errorf("期望 ErrAlreadyPaid，实际: %v", err)
	}
}

func TestPaymentService_CreateIntent_AmountMismatch(t *testing.T) {
	svc, billRepo, _, _ := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	// 客户端缓存的总额已过期
	req := &dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 12000}
	_, err := svc.CreateIntent(context.Background(), "stu-001", req)
	if !errors.Is(err, ErrAmountMismatch) {
		t.Errorf("期望 ErrAmountMismatch，实际: %v", err)
	}
}

func TestPaymentService_CreateIntent_ProcessorDown(t *testing.T) {
	svc, billRepo, _, proc := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)
	proc.createErr = errors.New("connection refused")

	req := &dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000}
	_, err := svc.CreateIntent(context.Background(), "stu-001", req)
	if !errors.Is(err, ErrProcessorUnavailable) {
		t.Errorf("期望 ErrProcessorUnavailable，实际: %v", err)
	}
}

// ── ConfirmLocal 测试 ──

func TestPaymentService_ConfirmLocal_Succeeded(t *testing.T) {
	svc, billRepo, _, proc := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	intent, _ := svc.CreateIntent(context.Background(), "stu-001",
		&dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000})
	proc.setStatus(intent.IntentID, payment.StatusSucceeded)

	result, err := svc.ConfirmLocal(context.Background(), "stu-001", intent.IntentID)
	if err != nil {
		t.Fatalf("ConfirmLocal 应成功: %v", err)
	}
	if result.State != model.AttemptConfirmed {
		t.Errorf("期望State=confirmed，实际=%s", result.State)
	}

	paid, _ := billRepo.GetByID(context.Background(), bill.BillID)
	if paid.Status != model.BillPaid {
		t.Errorf("期望账单Status=paid，实际=%s", paid.Status)
	}
	if paid.PaymentRef == nil || *paid.PaymentRef != intent.IntentID {
		t.Error("期望PaymentRef指向成功的意图")
	}
	if paid.PaidAt == nil {
		t.Error("期望PaidAt已写入")
	}
}

func TestPaymentService_ConfirmLocal_Processing(t *testing.T) {
	svc, billRepo, _, _ := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	intent, _ := svc.CreateIntent(context.Background(), "stu-001",
		&dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000})

	_, err := svc.ConfirmLocal(context.Background(), "stu-001", intent.IntentID)
	if !errors.Is(err, ErrPaymentNotReady) {
		t.Errorf("期望 ErrPaymentNotReady，实际: %v", err)
	}

	pending, _ := billRepo.GetByID(context.Background(), bill.BillID)
	if pending.Status != model.BillPending {
		t.Errorf("期望账单仍为pending，实际=%s", pending.Status)
	}
}

func TestPaymentService_ConfirmLocal_FailedThenRetry(t *testing.T) {
	svc, billRepo, payRepo, proc := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	intent, _ := svc.CreateIntent(context.Background(), "stu-001",
		&dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000})
	proc.setStatus(intent.IntentID, payment.StatusFailed)

	_, err := svc.ConfirmLocal(context.Background(), "stu-001", intent.IntentID)
	if !errors.Is(err, ErrProcessorRejected) {
		t.Errorf("期望 ErrProcessorRejected，实际: %v", err)
	}
	failed, _ := payRepo.GetByIntentID(context.Background(), intent.IntentID)
	if failed.State != model.AttemptFailed {
		t.Errorf("期望尝试State=failed，实际=%s", failed.State)
	}

	// 账单保持 pending，可用新意图重试
	retry, err := svc.CreateIntent(context.Background(), "stu-001",
		&dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000})
	if err != nil {
		t.Fatalf("失败后应允许重新发起: %v", err)
	}
	if retry.IntentID == intent.IntentID {
		t.Error("重试应得到新的意图ID")
	}
}

func TestPaymentService_ConfirmLocal_AfterWebhookCommit(t *testing.T) {
	svc, billRepo, payRepo, proc := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	intent, _ := svc.CreateIntent(context.Background(), "stu-001",
		&dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000})
	proc.setStatus(intent.IntentID, payment.StatusSucceeded)

	// 客户端离线期间 Webhook 先行提交
	event := &dto.WebhookEvent{EventID: "evt-001", IntentID: intent.IntentID, Status: "succeeded"}
	if err := svc.ReconcileAsync(context.Background(), event); err != nil {
		t.Fatalf("ReconcileAsync 应成功: %v", err)
	}

	// 客户端恢复后确认：定论式回应，不重复扣款
	_, err := svc.ConfirmLocal(context.Background(), "stu-001", intent.IntentID)
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Errorf("期望 ErrAlreadyPaid，实际: %v", err)
	}

	paid, _ := billRepo.GetByID(context.Background(), bill.BillID)
	if paid.Status != model.BillPaid {
		t.Errorf("期望账单Status=paid，实际=%s", paid.Status)
	}
	attempt, _ := payRepo.GetByIntentID(context.Background(), intent.IntentID)
	if attempt.State != model.AttemptConfirmed {
		t.Errorf("期望尝试State=confirmed，实际=%s", attempt.State)
	}
}

func TestPaymentService_ConfirmLocal_AmountDrift(t *testing.T) {
	svc, billRepo, _, proc := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	intent, _ := svc.CreateIntent(context.Background(), "stu-001",
		&dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000})
	proc.setStatus(intent.IntentID, payment.StatusSucceeded)

	// 意图创建后账单被重生成，总额变化
	billRepo.bills[bill.BillID].TotalAmount = 21000

	_, err := svc.ConfirmLocal(context.Background(), "stu-001", intent.IntentID)
	if !errors.Is(err, ErrAmountMismatch) {
		t.Errorf("期望 ErrAmountMismatch，实际: %v", err)
	}
}

func TestPaymentService_ConfirmLocal_IntentNotFound(t *testing.T) {
	svc, _, _, _ := setupTestPaymentService()

	_, err := svc.ConfirmLocal(context.Background(), "stu-001", "pi_nonexistent")
	if !errors.Is(err, ErrIntentNotFound) {
		t.Errorf("期望 ErrIntentNotFound，实际: %v", err)
	}
}

// ── ReconcileAsync 测试 ──

func TestPaymentService_ReconcileAsync_DuplicateDelivery(t *testing.T) {
	svc, billRepo, payRepo, proc := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	intent, _ := svc.CreateIntent(context.Background(), "stu-001",
		&dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000})
	proc.setStatus(intent.IntentID, payment.StatusSucceeded)

	event := &dto.WebhookEvent{EventID: "evt-001", IntentID: intent.IntentID, Status: "succeeded"}
	if err := svc.ReconcileAsync(context.Background(), event); err != nil {
		t.Fatalf("首次投递应成功: %v", err)
	}
	paid, _ := billRepo.GetByID(context.Background(), bill.BillID)
	firstPaidAt := *paid.PaidAt

	// 至少一次投递：重复事件必须被幂等吸收
	if err := svc.ReconcileAsync(context.Background(), event); err != nil {
		t.Fatalf("重复投递应被吸收: %v", err)
	}

	again, _ := billRepo.GetByID(context.Background(), bill.BillID)
	if !again.PaidAt.Equal(firstPaidAt) {
		t.Error("重复投递不应改写PaidAt")
	}
	attempts, _ := payRepo.ListByBill(context.Background(), bill.BillID)
	confirmed := 0
	for _, a := range attempts {
		if a.State == model.AttemptConfirmed {
			confirmed++
		}
	}
	if confirmed != 1 {
		t.Errorf("期望恰好1次confirmed，实际=%d", confirmed)
	}
}

func TestPaymentService_ReconcileAsync_UnknownIntent(t *testing.T) {
	svc, _, _, _ := setupTestPaymentService()

	event := &dto.WebhookEvent{EventID: "evt-001", IntentID: "pi_unknown", Status: "succeeded"}
	if err := svc.ReconcileAsync(context.Background(), event); err != nil {
		t.Errorf("未知意图应被吸收而非报错: %v", err)
	}
}

func TestPaymentService_ReconcileAsync_SupersededIntent(t *testing.T) {
	svc, billRepo, _, proc := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	first, _ := svc.CreateIntent(context.Background(), "stu-001",
		&dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000})
	second, _ := svc.CreateIntent(context.Background(), "stu-001",
		&dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000})
	proc.setStatus(first.IntentID, payment.StatusSucceeded)
	proc.setStatus(second.IntentID, payment.StatusSucceeded)

	// 被取代的旧意图回调：吸收，账单保持 pending
	old := &dto.WebhookEvent{EventID: "evt-001", IntentID: first.IntentID, Status: "succeeded"}
	if err := svc.ReconcileAsync(context.Background(), old); err != nil {
		t.Fatalf("旧意图回调应被吸收: %v", err)
	}
	pending, _ := billRepo.GetByID(context.Background(), bill.BillID)
	if pending.Status != model.BillPending {
		t.Errorf("旧意图不应提交账单，期望pending，实际=%s", pending.Status)
	}

	// 最新意图回调正常提交
	latest := &dto.WebhookEvent{EventID: "evt-002", IntentID: second.IntentID, Status: "succeeded"}
	if err := svc.ReconcileAsync(context.Background(), latest); err != nil {
		t.Fatalf("最新意图回调应提交: %v", err)
	}
	paid, _ := billRepo.GetByID(context.Background(), bill.BillID)
	if paid.Status != model.BillPaid {
		t.Errorf("期望账单Status=paid，实际=%s", paid.Status)
	}
	if *paid.PaymentRef != second.IntentID {
		t.Errorf("期望PaymentRef=%s，实际=%s", second.IntentID, *paid.PaymentRef)
	}
}

func TestPaymentService_ReconcileAsync_FailedEvent(t *testing.T) {
	svc, billRepo, payRepo, _ := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	intent, _ := svc.CreateIntent(context.Background(), "stu-001",
		&dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000})

	event := &dto.WebhookEvent{EventID: "evt-001", IntentID: intent.IntentID, Status: "failed"}
	if err := svc.ReconcileAsync(context.Background(), event); err != nil {
		t.Fatalf("失败事件应成功处理: %v", err)
	}

	attempt, _ := payRepo.GetByIntentID(context.Background(), intent.IntentID)
	if attempt.State != model.AttemptFailed {
		t.Errorf("期望尝试State=failed，实际=%s", attempt.State)
	}
	pending, _ := billRepo.GetByID(context.Background(), bill.BillID)
	if pending.Status != model.BillPending {
		t.Errorf("失败事件不应触碰账单，期望pending，实际=%s", pending.Status)
	}
}

func TestPaymentService_ReconcileAsync_AmountDriftAbsorbed(t *testing.T) {
	svc, billRepo, _, _ := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	intent, _ := svc.CreateIntent(context.Background(), "stu-001",
		&dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000})

	billRepo.bills[bill.BillID].TotalAmount = 21000

	event := &dto.WebhookEvent{EventID: "evt-001", IntentID: intent.IntentID, Status: "succeeded"}
	if err := svc.ReconcileAsync(context.Background(), event); err != nil {
		t.Fatalf("金额漂移应被吸收: %v", err)
	}
	pending, _ := billRepo.GetByID(context.Background(), bill.BillID)
	if pending.Status != model.BillPending {
		t.Errorf("金额漂移不应提交账单，期望pending，实际=%s", pending.Status)
	}
}

func TestPaymentService_ReconcileAsync_DedupFastPath(t *testing.T) {
	svc, billRepo, payRepo, proc := setupTestPaymentService()
	dedup := newMockEventDeduper()
	svc.(*paymentService).dedup = dedup
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	intent, _ := svc.CreateIntent(context.Background(), "stu-001",
		&dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000})
	proc.setStatus(intent.IntentID, payment.StatusSucceeded)

	event := &dto.WebhookEvent{EventID: "evt-001", IntentID: intent.IntentID, Status: "succeeded"}
	if err := svc.ReconcileAsync(context.Background(), event); err != nil {
		t.Fatalf("首次投递应成功: %v", err)
	}
	if !dedup.has("evt-001") {
		t.Error("成功提交后去重标记应保留")
	}

	// 重复投递在去重入口被识别
	if err := svc.ReconcileAsync(context.Background(), event); err != nil {
		t.Fatalf("重复投递应被吸收: %v", err)
	}
	attempts, _ := payRepo.ListByBill(context.Background(), bill.BillID)
	confirmed := 0
	for _, a := range attempts {
		if a.State == model.AttemptConfirmed {
			confirmed++
		}
	}
	if confirmed != 1 {
		t.Errorf("期望恰好1次confirmed，实际=%d", confirmed)
	}
}

func TestPaymentService_ReconcileAsync_DedupClearedOnCommitError(t *testing.T) {
	svc, billRepo, payRepo, proc := setupTestPaymentService()
	dedup := newMockEventDeduper()
	svc.(*paymentService).dedup = dedup
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	intent, _ := svc.CreateIntent(context.Background(), "stu-001",
		&dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000})
	proc.setStatus(intent.IntentID, payment.StatusSucceeded)

	// 首次投递落库瞬时失败：入口回应 5xx，处理器会重投
	billRepo.markPaidErr = errors.New("connection reset by peer")
	event := &dto.WebhookEvent{EventID: "evt-001", IntentID: intent.IntentID, Status: "succeeded"}
	if err := svc.ReconcileAsync(context.Background(), event); err == nil {
		t.Fatal("落库失败应向调用方返回错误")
	}
	if dedup.has("evt-001") {
		t.Error("失败投递的去重标记应被撤销，否则重投会被当作重复事件吞掉")
	}

	// 处理器重投同一事件：此时必须正常提交而非被去重吸收
	billRepo.markPaidErr = nil
	if err := svc.ReconcileAsync(context.Background(), event); err != nil {
		t.Fatalf("重投应提交成功: %v", err)
	}
	paid, _ := billRepo.GetByID(context.Background(), bill.BillID)
	if paid.Status != model.BillPaid {
		t.Errorf("期望重投后账单Status=paid，实际=%s", paid.Status)
	}
	attempt, _ := payRepo.GetByIntentID(context.Background(), intent.IntentID)
	if attempt.State != model.AttemptConfirmed {
		t.Errorf("期望尝试State=confirmed，实际=%s", attempt.State)
	}
}

// ── 恰好一次提交 ──

func TestPaymentService_ExactlyOnce_ConcurrentConfirmAndWebhook(t *testing.T) {
	svc, billRepo, payRepo, proc := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	intent, _ := svc.CreateIntent(context.Background(), "stu-001",
		&dto.CreateIntentRequest{BillID: bill.BillID, ExpectedAmount: 14000})
	proc.setStatus(intent.IntentID, payment.StatusSucceeded)

	// 同步确认与异步回调同时到达：条件更新裁决唯一赢家
	var wg sync.WaitGroup
	var confirmErr, reconcileErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, confirmErr = svc.ConfirmLocal(context.Background(), "stu-001", intent.IntentID)
	}()
	go func() {
		defer wg.Done()
		event := &dto.WebhookEvent{EventID: "evt-001", IntentID: intent.IntentID, Status: "succeeded"}
		reconcileErr = svc.ReconcileAsync(context.Background(), event)
	}()
	wg.Wait()

	// 落败方只允许收到定论式的 AlreadyPaid（或被吸收为 nil）
	if confirmErr != nil && !errors.Is(confirmErr, ErrAlreadyPaid) {
		t.Errorf("ConfirmLocal 非预期错误: %v", confirmErr)
	}
	if reconcileErr != nil {
		t.Errorf("ReconcileAsync 非预期错误: %v", reconcileErr)
	}

	paid, _ := billRepo.GetByID(context.Background(), bill.BillID)
	if paid.Status != model.BillPaid {
		t.Fatalf("期望账单Status=paid，实际=%s", paid.Status)
	}
	attempts, _ := payRepo.ListByBill(context.Background(), bill.BillID)
	confirmed := 0
	for _, a := range attempts {
		if a.State == model.AttemptConfirmed {
			confirmed++
		}
	}
	if confirmed != 1 {
		t.Errorf("期望恰好1次confirmed，实际=%d", confirmed)
	}
}

// ── SweepStaleAttempts 测试 ──

func TestPaymentService_Sweep_CommitsOrphanedSuccess(t *testing.T) {
	svc, billRepo, payRepo, proc := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	// 处理器侧已成功、本地停留在 created 超过时限的尝试
	stale := &model.PaymentAttempt{
		BillID:    bill.BillID,
		IntentID:  "pi_orphan",
		Amount:    14000,
		Currency:  "INR",
		State:     model.AttemptCreated,
		CreatedBy: "stu-001",
	}
	stale.CreatedAt = time.Now().Add(-time.Hour)
	payRepo.Create(context.Background(), stale)
	proc.setStatus("pi_orphan", payment.StatusSucceeded)

	processed, err := svc.SweepStaleAttempts(context.Background())
	if err != nil {
		t.Fatalf("Sweep 应成功: %v", err)
	}
	if processed != 1 {
		t.Errorf("期望processed=1，实际=%d", processed)
	}

	paid, _ := billRepo.GetByID(context.Background(), bill.BillID)
	if paid.Status != model.BillPaid {
		t.Errorf("期望补提交后Status=paid，实际=%s", paid.Status)
	}
	attempt, _ := payRepo.GetByIntentID(context.Background(), "pi_orphan")
	if attempt.State != model.AttemptConfirmed {
		t.Errorf("期望尝试State=confirmed，实际=%s", attempt.State)
	}
}

func TestPaymentService_Sweep_SkipsProcessingAndFresh(t *testing.T) {
	svc, billRepo, payRepo, _ := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	// 仍在处理中的滞留尝试：等待下一轮
	staleProcessing := &model.PaymentAttempt{
		BillID:    bill.BillID,
		IntentID:  "pi_processing",
		Amount:    14000,
		Currency:  "INR",
		State:     model.AttemptCreated,
		CreatedBy: "stu-001",
	}
	staleProcessing.CreatedAt = time.Now().Add(-time.Hour)
	payRepo.Create(context.Background(), staleProcessing)

	// 未超时限的新尝试：不在扫描范围
	fresh := &model.PaymentAttempt{
		BillID:    bill.BillID,
		IntentID:  "pi_fresh",
		Amount:    14000,
		Currency:  "INR",
		State:     model.AttemptCreated,
		CreatedBy: "stu-001",
	}
	payRepo.Create(context.Background(), fresh)

	processed, err := svc.SweepStaleAttempts(context.Background())
	if err != nil {
		t.Fatalf("Sweep 应成功: %v", err)
	}
	if processed != 0 {
		t.Errorf("期望processed=0，实际=%d", processed)
	}
	pending, _ := billRepo.GetByID(context.Background(), bill.BillID)
	if pending.Status != model.BillPending {
		t.Errorf("期望账单仍为pending，实际=%s", pending.Status)
	}
}

func TestPaymentService_Sweep_MarksFailed(t *testing.T) {
	svc, billRepo, payRepo, proc := setupTestPaymentService()
	bill := seedPendingBill(t, billRepo, "stu-001", 14000)

	stale := &model.PaymentAttempt{
		BillID:    bill.BillID,
		IntentID:  "pi_dead",
		Amount:    14000,
		Currency:  "INR",
		State:     model.AttemptCreated,
		CreatedBy: "stu-001",
	}
	stale.CreatedAt = time.Now().Add(-time.Hour)
	payRepo.Create(context.Background(), stale)
	proc.setStatus("pi_dead", payment.StatusFailed)

	processed, err := svc.SweepStaleAttempts(context.Background())
	if err != nil {
		t.Fatalf("Sweep 应成功: %v", err)
	}
	if processed != 1 {
		t.Errorf("期望processed=1，实际=%d", processed)
	}
	attempt, _ := payRepo.GetByIntentID(context.Background(), "pi_dead")
	if attempt.State != model.AttemptFailed {
		t.Errorf("期望尝试State=failed，实际=%s", attempt.State)
	}
	pending, _ := billRepo.GetByID(context.Background(), bill.BillID)
	if pending.Status != model.BillPending {
		t.Errorf("账单应保持pending可重试，实际=%s", pending.Status)
	}
}
