package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 核心链路业务指标：考勤 → 账单 → 支付
var (
	// SelfMarksTotal 学生自助签到结果计数
	SelfMarksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mess_self_marks_total",
		Help: "学生自助签到次数（按结果）",
	}, []string{"outcome"}) // created | already_marked | window_closed

	// BillsGeneratedTotal 账单生成结果计数
	BillsGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mess_bills_generated_total",
		Help: "账单生成的单学生结果数（按结果）",
	}, []string{"outcome"}) // created | updated | skipped_paid | skipped_error

	// PaymentCommitsTotal 支付终态提交计数
	PaymentCommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mess_payment_commits_total",
		Help: "账单置为已支付的提交次数（按提交路径）",
	}, []string{"path"}) // confirm_local | reconcile_async | sweep

	// ReconcileConflictsTotal 对账冲突计数（被吸收，不对用户暴露）
	ReconcileConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mess_reconcile_conflicts_total",
		Help: "Webhook 对账中被吸收的冲突事件数",
	})

	// ProcessorRequestDuration 处理器外呼耗时
	ProcessorRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mess_processor_request_duration_seconds",
		Help:    "支付处理器 API 调用耗时",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"}) // create_intent | get_status
)
