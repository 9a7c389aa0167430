package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel-mess/backend/internal/dto"
	"hostel-mess/backend/internal/model"
	"hostel-mess/backend/internal/repository"
	pkgerrors "hostel-mess/backend/pkg/errors"
	"hostel-mess/backend/pkg/metrics"
)

// ── 账单模块业务错误 ──

var (
	ErrBillNotFound  = errors.New("账单不存在")
	ErrInvalidPeriod = errors.New("无效的账期")
)

// BillingService 账单业务接口
type BillingService interface {
	// Generate 聚合某账期内所有已审批用餐记录并生成/更新账单。
	// 幂等：考勤快照不变时重复执行得到相同总额；
	// 已支付账单被跳过并上报，单学生失败不影响整批。
	Generate(ctx context.Context, month, year int) (*dto.GenerateSummaryResponse, error)
	GetBill(ctx context.Context, billID string) (*dto.BillResponse, error)
	GetStudentBill(ctx context.Context, studentID string, month, year int) (*dto.BillResponse, error)
	ListBills(ctx context.Context, month, year, page, pageSize int) ([]dto.BillResponse, int64, error)
	ListStudentBills(ctx context.Context, studentID string) ([]dto.BillResponse, error)
}

type billingService struct {
	repo   *repository.Repository
	rates  RateProvider
	logger *zap.Logger
}

// NewBillingService 创建 BillingService 实例
func NewBillingService(repo *repository.Repository, rates RateProvider, logger *zap.Logger) BillingService {
	return &billingService{repo: repo, rates: rates, logger: logger}
}

// ────────────────────── Generate ──────────────────────

func (s *billingService) Generate(ctx context.Context, month, year int) (*dto.GenerateSummaryResponse, error) {
	from, to, err := monthRange(month, year)
	if err != nil {
		return nil, ErrInvalidPeriod
	}

	studentIDs, err := s.repo.Attendance.DistinctStudentsWithApproved(ctx, from, to)
	if err != nil {
		s.logger.Error("查询账期学生清单失败",
			zap.Int("month", month), zap.Int("year", year), zap.Error(err))
		return nil, err
	}

	summary := &dto.GenerateSummaryResponse{
		Month:    month,
		Year:     year,
		Students: len(studentIDs),
		Outcomes: make([]dto.StudentBillOutcome, 0, len(studentIDs)),
	}

	for _, studentID := range studentIDs {
		outcome := s.generateForStudent(ctx, studentID, month, year, from, to)
		switch outcome.Outcome {
		case dto.BillOutcomeCreated:
			summary.Created++
		case dto.BillOutcomeUpdated:
			summary.Updated++
		case dto.BillOutcomeSkippedPaid:
			summary.SkippedPaid++
		case dto.BillOutcomeSkippedError:
			summary.SkippedError++
		}
		metrics.BillsGeneratedTotal.WithLabelValues(outcome.Outcome).Inc()
		summary.Outcomes = append(summary.Outcomes, outcome)
	}

	s.logger.Info("账单生成完成",
		zap.Int("month", month),
		zap.Int("year", year),
		zap.Int("students", summary.Students),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped_paid", summary.SkippedPaid),
		zap.Int("skipped_error", summary.SkippedError),
	)

	return summary, nil
}

// generateForStudent 单个学生的读-算-写在同一事务内完成，
// 要么账单完整落库，要么保持原样，不产生部分总额
func (s *billingService) generateForStudent(ctx context.Context, studentID string, month, year int, from, to time.Time) dto.StudentBillOutcome {
	outcome := dto.StudentBillOutcome{StudentID: studentID}

	err := s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		records, err := txRepo.Attendance.ListApprovedPresent(ctx, studentID, from, to)
		if err != nil {
			return err
		}

		breakdown, err := s.aggregate(records)
		if err != nil {
			return err
		}
		total := breakdown.Total()

		existing, err := txRepo.Bill.GetByKey(ctx, studentID, month, year)
		switch {
		case err == nil && existing.Status == model.BillPaid:
			// 已支付账单冻结：重生成必须拒绝改写，上报跳过而不是中断整批
			outcome.Outcome = dto.BillOutcomeSkippedPaid
			return nil

		case err == nil:
			existing.Breakdown = breakdown
			existing.TotalAmount = total
			existing.GeneratedAt = time.Now()
			if err := txRepo.Bill.UpdatePending(ctx, existing); err != nil {
				if errors.Is(err, pkgerrors.ErrOptimisticLock) {
					// 读到 pending 后被并发支付抢先置为 paid
					outcome.Outcome = dto.BillOutcomeSkippedPaid
					return nil
				}
				return err
			}
			outcome.Outcome = dto.BillOutcomeUpdated
			outcome.TotalAmount = total
			return nil

		case errors.Is(err, gorm.ErrRecordNotFound):
			bill := &model.Bill{
				StudentID:   studentID,
				Month:       month,
				Year:        year,
				Breakdown:   breakdown,
				TotalAmount: total,
				Currency:    s.rates.Currency(),
				Status:      model.BillPending,
				GeneratedAt: time.Now(),
			}
			if err := txRepo.Bill.Create(ctx, bill); err != nil {
				return err
			}
			outcome.Outcome = dto.BillOutcomeCreated
			outcome.TotalAmount = total
			return nil

		default:
			return err
		}
	})
	if err != nil {
		s.logger.Error("生成学生账单失败", zap.String("student_id", studentID), zap.Error(err))
		outcome.Outcome = dto.BillOutcomeSkippedError
		outcome.Error = err.Error()
		outcome.TotalAmount = 0
	}
	return outcome
}

// aggregate 按餐段汇总计数并乘以单价
// 没有用餐记录的餐段不出现在明细中（不以零金额行占位）
func (s *billingService) aggregate(records []model.AttendanceRecord) (model.Breakdown, error) {
	counts := make(map[string]int)
	for i := range records {
		counts[records[i].MealSlot]++
	}

	breakdown := make(model.Breakdown, len(counts))
	for slot, count := range counts {
		rate, err := s.rates.GetRate(slot)
		if err != nil {
			return nil, err
		}
		breakdown[slot] = model.SlotLine{
			Count:    count,
			Rate:     rate,
			Subtotal: int64(count) * rate,
		}
	}
	return breakdown, nil
}

// ────────────────────── 查询 ──────────────────────

func (s *billingService) GetBill(ctx context.Context, billID string) (*dto.BillResponse, error) {
	bill, err := s.repo.Bill.GetByID(ctx, billID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBillNotFound
		}
		s.logger.Error("查询账单失败", zap.String("bill_id", billID), zap.Error(err))
		return nil, err
	}
	return toBillResponse(bill), nil
}

func (s *billingService) GetStudentBill(ctx context.Context, studentID string, month, year int) (*dto.BillResponse, error) {
	if month < 1 || month > 12 {
		return nil, ErrInvalidPeriod
	}
	bill, err := s.repo.Bill.GetByKey(ctx, studentID, month, year)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBillNotFound
		}
		s.logger.Error("查询学生账单失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}
	return toBillResponse(bill), nil
}

func (s *billingService) ListBills(ctx context.Context, month, year, page, pageSize int) ([]dto.BillResponse, int64, error) {
	offset := (page - 1) * pageSize
	bills, total, err := s.repo.Bill.List(ctx, month, year, offset, pageSize)
	if err != nil {
		s.logger.Error("查询账单列表失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.BillResponse, 0, len(bills))
	for i := range bills {
		result = append(result, *toBillResponse(&bills[i]))
	}
	return result, total, nil
}

func (s *billingService) ListStudentBills(ctx context.Context, studentID string) ([]dto.BillResponse, error) {
	bills, err := s.repo.Bill.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("查询学生历史账单失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.BillResponse, 0, len(bills))
	for i := range bills {
		result = append(result, *toBillResponse(&bills[i]))
	}
	return result, nil
}

// ── 内部辅助方法 ──

func toBillResponse(bill *model.Bill) *dto.BillResponse {
	breakdown := make(map[string]dto.SlotLineResponse, len(bill.Breakdown))
	for slot, line := range bill.Breakdown {
		breakdown[slot] = dto.SlotLineResponse{
			Count:    line.Count,
			Rate:     line.Rate,
			Subtotal: line.Subtotal,
		}
	}

	resp := &dto.BillResponse{
		ID:          bill.BillID,
		StudentID:   bill.StudentID,
		Month:       bill.Month,
		Year:        bill.Year,
		Breakdown:   breakdown,
		TotalAmount: bill.TotalAmount,
		Currency:    bill.Currency,
		Status:      bill.Status,
		GeneratedAt: bill.GeneratedAt.Format(time.RFC3339),
		PaymentRef:  bill.PaymentRef,
	}
	if bill.PaidAt != nil {
		formatted := bill.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &formatted
	}
	return resp
}
