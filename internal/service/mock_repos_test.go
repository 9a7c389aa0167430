package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"hostel-mess/backend/internal/model"
	"hostel-mess/backend/internal/payment"
	"hostel-mess/backend/internal/repository"
	pkgerrors "hostel-mess/backend/pkg/errors"
)

// ── Mock AttendanceRepository ──

type mockAttendanceRepo struct {
	mu      sync.Mutex
	records map[string]*model.AttendanceRecord
	seq     int
}

func newMockAttendanceRepo() *mockAttendanceRepo {
	return &mockAttendanceRepo{records: make(map[string]*model.AttendanceRecord)}
}

func attendanceKey(studentID string, date time.Time, slot string) string {
	return studentID + "|" + date.Format("2006-01-02") + "|" + slot
}

func (m *mockAttendanceRepo) Create(_ context.Context, record *model.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := attendanceKey(record.StudentID, record.Date, record.MealSlot)
	for _, r := range m.records {
		if attendanceKey(r.StudentID, r.Date, r.MealSlot) == key {
			return gorm.ErrDuplicatedKey
		}
	}

	if record.RecordID == "" {
		m.seq++
		record.RecordID = fmt.Sprintf("att-%03d", m.seq)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	m.records[record.RecordID] = record
	return nil
}

func (m *mockAttendanceRepo) GetByID(_ context.Context, id string) (*model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAttendanceRepo) UpdateApproval(_ context.Context, recordID, fromState, toState, actorID string, reason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[recordID]
	if !ok || r.ApprovalState != fromState {
		return pkgerrors.ErrOptimisticLock
	}
	now := time.Now()
	r.ApprovalState = toState
	r.ApprovedBy = &actorID
	r.ApprovedAt = &now
	if reason != nil {
		r.RejectReason = reason
	}
	return nil
}

func (m *mockAttendanceRepo) ListApprovedPresent(_ context.Context, studentID string, from, to time.Time) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []model.AttendanceRecord
	for _, r := range m.records {
		if r.StudentID != studentID || r.ApprovalState != model.ApprovalApproved || !r.Present {
			continue
		}
		if r.Date.Before(from) || !r.Date.Before(to) {
			continue
		}
		result = append(result, *r)
	}
	return result, nil
}

func (m *mockAttendanceRepo) DistinctStudentsWithApproved(_ context.Context, from, to time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	for _, r := range m.records {
		if r.ApprovalState != model.ApprovalApproved || !r.Present {
			continue
		}
		if r.Date.Before(from) || !r.Date.Before(to) {
			continue
		}
		seen[r.StudentID] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockAttendanceRepo) ListByStudent(_ context.Context, studentID string, from, to time.Time) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []model.AttendanceRecord
	for _, r := range m.records {
		if r.StudentID != studentID {
			continue
		}
		if r.Date.Before(from) || !r.Date.Before(to) {
			continue
		}
		result = append(result, *r)
	}
	return result, nil
}

func (m *mockAttendanceRepo) ListPending(_ context.Context, offset, limit int) ([]model.AttendanceRecord, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []model.AttendanceRecord
	for _, r := range m.records {
		if r.ApprovalState == model.ApprovalPending {
			pending = append(pending, *r)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].MarkedAt.Before(pending[j].MarkedAt)
	})
	total := int64(len(pending))
	if offset >= len(pending) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(pending) {
		end = len(pending)
	}
	return pending[offset:end], total, nil
}

// ── Mock BillRepository ──

type mockBillRepo struct {
	mu          sync.Mutex
	bills       map[string]*model.Bill
	seq         int
	markPaidErr error // 注入瞬时落库错误
}

func newMockBillRepo() *mockBillRepo {
	return &mockBillRepo{bills: make(map[string]*model.Bill)}
}

func (m *mockBillRepo) Create(_ context.Context, bill *model.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.bills {
		if b.StudentID == bill.StudentID && b.Month == bill.Month && b.Year == bill.Year {
			return gorm.ErrDuplicatedKey
		}
	}
	if bill.BillID == "" {
		m.seq++
		bill.BillID = fmt.Sprintf("bill-%03d", m.seq)
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now()
	}
	m.bills[bill.BillID] = bill
	return nil
}

func (m *mockBillRepo) GetByID(_ context.Context, id string) (*model.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bills[id]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockBillRepo) GetByKey(_ context.Context, studentID string, month, year int) (*model.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bills {
		if b.StudentID == studentID && b.Month == month && b.Year == year {
			copied := *b
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockBillRepo) UpdatePending(_ context.Context, bill *model.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bills[bill.BillID]
	if !ok || b.Status != model.BillPending {
		return pkgerrors.ErrOptimisticLock
	}
	b.Breakdown = bill.Breakdown
	b.TotalAmount = bill.TotalAmount
	b.GeneratedAt = bill.GeneratedAt
	return nil
}

func (m *mockBillRepo) MarkPaid(_ context.Context, billID string, paidAt time.Time, paymentRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.markPaidErr != nil {
		return m.markPaidErr
	}
	b, ok := m.bills[billID]
	if !ok || b.Status != model.BillPending {
		return pkgerrors.ErrOptimisticLock
	}
	b.Status = model.BillPaid
	b.PaidAt = &paidAt
	b.PaymentRef = &paymentRef
	return nil
}

func (m *mockBillRepo) List(_ context.Context, month, year, offset, limit int) ([]model.Bill, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []model.Bill
	for _, b := range m.bills {
		if b.Month == month && b.Year == year {
			matched = append(matched, *b)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StudentID < matched[j].StudentID
	})
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (m *mockBillRepo) ListByStudent(_ context.Context, studentID string) ([]model.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []model.Bill
	for _, b := range m.bills {
		if b.StudentID == studentID {
			result = append(result, *b)
		}
	}
	return result, nil
}

// ── Mock PaymentAttemptRepository ──

// attempts 用切片保序：GetLatestByBill 的"最近一次"按插入顺序裁决，
// 避免同一毫秒创建的多条尝试在 created_at 上无法区分
type mockPaymentAttemptRepo struct {
	mu       sync.Mutex
	attempts []*model.PaymentAttempt
	seq      int
}

func newMockPaymentAttemptRepo() *mockPaymentAttemptRepo {
	return &mockPaymentAttemptRepo{}
}

func (m *mockPaymentAttemptRepo) Create(_ context.Context, attempt *model.PaymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if attempt.AttemptID == "" {
		m.seq++
		attempt.AttemptID = fmt.Sprintf("pay-%03d", m.seq)
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *mockPaymentAttemptRepo) GetByIntentID(_ context.Context, intentID string) (*model.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.IntentID == intentID {
			copied := *a
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockPaymentAttemptRepo) GetLatestByBill(_ context.Context, billID string) (*model.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.attempts) - 1; i >= 0; i-- {
		if m.attempts[i].BillID == billID {
			copied := *m.attempts[i]
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockPaymentAttemptRepo) UpdateState(_ context.Context, attemptID, fromState, toState string, confirmedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.AttemptID != attemptID {
			continue
		}
		if a.State != fromState {
			return pkgerrors.ErrOptimisticLock
		}
		a.State = toState
		if confirmedAt != nil {
			a.ConfirmedAt = confirmedAt
		}
		return nil
	}
	return pkgerrors.ErrOptimisticLock
}

func (m *mockPaymentAttemptRepo) ListStaleCreated(_ context.Context, before time.Time, limit int) ([]model.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []model.PaymentAttempt
	for _, a := range m.attempts {
		if a.State == model.AttemptCreated && a.CreatedAt.Before(before) {
			result = append(result, *a)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *mockPaymentAttemptRepo) ListByBill(_ context.Context, billID string) ([]model.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []model.PaymentAttempt
	for _, a := range m.attempts {
		if a.BillID == billID {
			result = append(result, *a)
		}
	}
	return result, nil
}

// ── Mock 事件去重 ──

type mockEventDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMockEventDeduper() *mockEventDeduper {
	return &mockEventDeduper{seen: make(map[string]bool)}
}

func (m *mockEventDeduper) MarkEventSeen(_ context.Context, eventID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	return true, nil
}

func (m *mockEventDeduper) ClearEventSeen(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, eventID)
	return nil
}

func (m *mockEventDeduper) has(eventID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[eventID]
}

// ── Mock Processor ──

type mockProcessor struct {
	mu          sync.Mutex
	statuses    map[string]payment.Status
	createErr   error
	statusErr   error
	createCalls int
}

func newMockProcessor() *mockProcessor {
	return &mockProcessor{statuses: make(map[string]payment.Status)}
}

func (m *mockProcessor) CreateIntent(_ context.Context, _ int64, _ string) (*payment.IntentRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.createCalls++
	id := fmt.Sprintf("pi_%03d", m.createCalls)
	if _, ok := m.statuses[id]; !ok {
		m.statuses[id] = payment.StatusProcessing
	}
	return &payment.IntentRef{ID: id, ClientSecret: "secret_" + id}, nil
}

func (m *mockProcessor) GetIntentStatus(_ context.Context, intentID string) (payment.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return "", m.statusErr
	}
	if s, ok := m.statuses[intentID]; ok {
		return s, nil
	}
	return payment.StatusProcessing, nil
}

func (m *mockProcessor) setStatus(intentID string, status payment.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[intentID] = status
}

// ── 测试辅助 ──

func newMockRepository() (*repository.Repository, *mockAttendanceRepo, *mockBillRepo, *mockPaymentAttemptRepo) {
	attRepo := newMockAttendanceRepo()
	billRepo := newMockBillRepo()
	payRepo := newMockPaymentAttemptRepo()
	repo := &repository.Repository{
		Attendance:     attRepo,
		Bill:           billRepo,
		PaymentAttempt: payRepo,
	}
	return repo, attRepo, billRepo, payRepo
}
