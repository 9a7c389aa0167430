package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hostel-mess/backend/config"
	"hostel-mess/backend/internal/api/handler"
	"hostel-mess/backend/internal/api/router"
	"hostel-mess/backend/internal/payment"
	"hostel-mess/backend/internal/repository"
	"hostel-mess/backend/internal/service"
	"hostel-mess/backend/pkg/database"
	"hostel-mess/backend/pkg/jwt"
	applogger "hostel-mess/backend/pkg/logger"
	"hostel-mess/backend/pkg/redis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	var rdb *redis.Client
	rdb, err = redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，Webhook 去重与限流将降级", zap.Error(err))
		rdb = nil
	}

	// 5. 初始化 JWT 管理器与支付处理器客户端
	jwtMgr := jwt.NewManager(&cfg.Auth)
	processor := payment.NewHTTPProcessor(&cfg.Payment, logger)

	// 6. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, processor, rdb, logger)
	h := handler.NewHandler(cfg, svc)

	// 7. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, rdb, logger)

	// 8. 后台任务：滞留支付尝试对账扫描 + 可选的月度账单自动生成
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go runSweeper(bgCtx, cfg, svc, logger)
	if cfg.Billing.AutoGenerate {
		go runAutoGenerate(bgCtx, svc, logger)
	}

	// 9. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 10. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 关闭数据库连接
	closeDB, _ := db.DB()
	if closeDB != nil {
		closeDB.Close()
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}

// runSweeper 周期性收尾停留在 created 状态过久的支付尝试
// 处理器侧可能已成功但本地从未确认的意图由此补提交
func runSweeper(ctx context.Context, cfg *config.Config, svc *service.Service, logger *zap.Logger) {
	interval := cfg.Payment.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.Payment.SweepStaleAttempts(ctx); err != nil {
				logger.Error("对账扫描失败", zap.Error(err))
			}
		}
	}
}

// runAutoGenerate 月初自动为上月生成账单
// 按下一个月初计算等待时长，固定周期打点会漂移错过触发日；
// 生成本身幂等，重复触发无副作用
func runAutoGenerate(ctx context.Context, svc *service.Service, logger *zap.Logger) {
	for {
		next := nextMonthStart(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			prev := next.AddDate(0, -1, 0)
			if _, err := svc.Billing.Generate(ctx, int(prev.Month()), prev.Year()); err != nil {
				logger.Error("自动生成上月账单失败",
					zap.Int("month", int(prev.Month())),
					zap.Int("year", prev.Year()),
					zap.Error(err),
				)
			}
		}
	}
}

// nextMonthStart 返回 t 之后最近的月初触发时刻（当地时间 00:05，
// 留出跨午夜考勤写入落定的余量）
func nextMonthStart(t time.Time) time.Time {
	n := time.Date(t.Year(), t.Month(), 1, 0, 5, 0, 0, t.Location())
	if !n.After(t) {
		n = n.AddDate(0, 1, 0)
	}
	return n
}
