package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"hostel-mess/backend/config"
	"hostel-mess/backend/pkg/metrics"
)

// Status 处理器侧支付意图状态
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// IntentRef 处理器返回的意图句柄
// ClientSecret 只透传给前端完成挑战，不落库
type IntentRef struct {
	ID           string
	ClientSecret string
}

// Processor 外部支付处理器接口
// 本服务只消费这两个能力；入站 Webhook 由 ReconcileAsync 处理
type Processor interface {
	CreateIntent(ctx context.Context, amount int64, currency string) (*IntentRef, error)
	GetIntentStatus(ctx context.Context, intentID string) (Status, error)
}

// ── HTTP 实现 ──

type httpProcessor struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPProcessor 创建基于 HTTP 的处理器客户端
func NewHTTPProcessor(cfg *config.PaymentConfig, logger *zap.Logger) Processor {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpProcessor{
		baseURL: cfg.ProcessorBaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type createIntentRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type intentResponse struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Status       string `json:"status"`
}

func (p *httpProcessor) CreateIntent(ctx context.Context, amount int64, currency string) (*IntentRef, error) {
	timer := prometheus.NewTimer(metrics.ProcessorRequestDuration.WithLabelValues("create_intent"))
	defer timer.ObserveDuration()

	body, err := json.Marshal(createIntentRequest{Amount: amount, Currency: currency})
	if err != nil {
		return nil, fmt.Errorf("序列化意图请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/intents", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("构造意图请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("处理器创建意图失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("处理器创建意图返回异常状态: %d", resp.StatusCode)
	}

	var out intentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("解析意图响应失败: %w", err)
	}
	if out.IntentID == "" {
		return nil, fmt.Errorf("处理器未返回意图 ID")
	}

	p.logger.Debug("支付意图已创建",
		zap.String("intent_id", out.IntentID),
		zap.Int64("amount", amount),
	)

	return &IntentRef{ID: out.IntentID, ClientSecret: out.ClientSecret}, nil
}

func (p *httpProcessor) GetIntentStatus(ctx context.Context, intentID string) (Status, error) {
	timer := prometheus.NewTimer(metrics.ProcessorRequestDuration.WithLabelValues("get_status"))
	defer timer.ObserveDuration()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/intents/"+intentID, nil)
	if err != nil {
		return "", fmt.Errorf("构造状态查询失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("处理器状态查询失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("处理器状态查询返回异常状态: %d", resp.StatusCode)
	}

	var out intentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("解析状态响应失败: %w", err)
	}

	switch Status(out.Status) {
	case StatusProcessing, StatusSucceeded, StatusFailed:
		return Status(out.Status), nil
	default:
		return "", fmt.Errorf("处理器返回未知状态: %q", out.Status)
	}
}
