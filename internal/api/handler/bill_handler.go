package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"hostel-mess/backend/internal/dto"
	"hostel-mess/backend/internal/service"
	"hostel-mess/backend/pkg/response"
)

// BillHandler 账单模块 HTTP 处理器
type BillHandler struct {
	billingSvc service.BillingService
}

// NewBillHandler 创建 BillHandler
func NewBillHandler(billingSvc service.BillingService) *BillHandler {
	return &BillHandler{billingSvc: billingSvc}
}

// Generate 触发账期账单生成（管理端/调度器）
// POST /api/v1/bills/generate
func (h *BillHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	summary, err := h.billingSvc.Generate(c.Request.Context(), req.Month, req.Year)
	if err != nil {
		h.handleBillError(c, err)
		return
	}

	response.OK(c, summary)
}

// GetMyBill 学生查看本人某账期账单
// GET /api/v1/bills/me/:month/:year
func (h *BillHandler) GetMyBill(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	month, err := strconv.Atoi(c.Param("month"))
	if err != nil {
		response.BadRequest(c, 10001, "month 参数无效")
		return
	}
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		response.BadRequest(c, 10001, "year 参数无效")
		return
	}

	bill, err := h.billingSvc.GetStudentBill(c.Request.Context(), studentID, month, year)
	if err != nil {
		h.handleBillError(c, err)
		return
	}

	response.OK(c, bill)
}

// ListMyBills 学生查看本人历史账单
// GET /api/v1/bills/me
func (h *BillHandler) ListMyBills(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	bills, err := h.billingSvc.ListStudentBills(c.Request.Context(), studentID)
	if err != nil {
		h.handleBillError(c, err)
		return
	}

	response.OK(c, gin.H{"list": bills})
}

// ListBills 管理员查看某账期全部账单
// GET /api/v1/bills?month=9&year=2026
func (h *BillHandler) ListBills(c *gin.Context) {
	month, year, ok := parsePeriod(c)
	if !ok {
		return
	}

	var page dto.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	bills, total, err := h.billingSvc.ListBills(c.Request.Context(), month, year, page.GetPage(), page.GetPageSize())
	if err != nil {
		h.handleBillError(c, err)
		return
	}

	response.OKPage(c, bills, total, page.GetPage(), page.GetPageSize())
}

// handleBillError 统一处理账单模块业务错误
func (h *BillHandler) handleBillError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrBillNotFound):
		response.NotFound(c, 12001, "账单不存在")
	case errors.Is(err, service.ErrInvalidPeriod):
		response.BadRequest(c, 12002, "无效的账期")
	case errors.Is(err, service.ErrRateNotConfigured):
		response.InternalError(c)
	default:
		response.InternalError(c)
	}
}
