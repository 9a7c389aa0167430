package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hostel-mess/backend/config"
	"hostel-mess/backend/internal/api/handler"
	"hostel-mess/backend/internal/api/middleware"
	"hostel-mess/backend/pkg/jwt"
	"hostel-mess/backend/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodyLimit(1 << 20)) // 1MB

	// ── 健康检查 / 指标 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 支付处理器回调（处理器侧 HMAC 认证，不走用户 JWT）
		v1.POST("/payments/webhook",
			middleware.RateLimit(rdb, 120, time.Minute),
			h.Webhook.HandleEvent,
		)

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr))
		{
			// 考勤模块
			attendance := authorized.Group("/attendance")
			{
				attendance.POST("/self-mark", middleware.RoleAuth("student"), h.Attendance.SelfMark)
				attendance.GET("/me", middleware.RoleAuth("student"), h.Attendance.ListMine)
				attendance.POST("/batch-mark", middleware.RoleAuth("manager", "admin"), h.Attendance.ManagerMark)
				attendance.GET("/pending", middleware.RoleAuth("manager", "admin"), h.Attendance.ListPending)
				attendance.PUT("/:id/approve", middleware.RoleAuth("manager", "admin"), h.Attendance.Approve)
				attendance.PUT("/:id/reject", middleware.RoleAuth("manager", "admin"), h.Attendance.Reject)
			}

			// 账单模块
			bills := authorized.Group("/bills")
			{
				bills.GET("/me", middleware.RoleAuth("student"), h.Bill.ListMyBills)
				bills.GET("/me/:month/:year", middleware.RoleAuth("student"), h.Bill.GetMyBill)
				bills.GET("", middleware.RoleAuth("manager", "admin"), h.Bill.ListBills)
				bills.POST("/generate", middleware.RoleAuth("admin"), h.Bill.Generate)
			}

			// 支付模块
			payments := authorized.Group("/payments")
			{
				payments.POST("/intents", middleware.RoleAuth("student"), h.Payment.CreateIntent)
				payments.POST("/intents/:id/confirm", middleware.RoleAuth("student"), h.Payment.ConfirmLocal)
			}
		}
	}

	return r
}
