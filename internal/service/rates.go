package service

import (
	"errors"

	"hostel-mess/backend/config"
)

// ErrRateNotConfigured 餐段缺少单价配置
var ErrRateNotConfigured = errors.New("餐段单价未配置")

// RateProvider 计价配置只读接口
// 以注入依赖的形式提供，账单生成因此是（考勤快照，计价快照）的纯函数，
// 测试中可以用固定费率做确定性重放
type RateProvider interface {
	GetRate(mealSlot string) (int64, error)
	Currency() string
}

type configRateProvider struct {
	rates    map[string]int64
	currency string
}

// NewConfigRateProvider 基于配置文件的 RateProvider 实现
func NewConfigRateProvider(cfg *config.BillingConfig) RateProvider {
	return &configRateProvider{
		rates:    cfg.Rates,
		currency: cfg.Currency,
	}
}

func (p *configRateProvider) GetRate(mealSlot string) (int64, error) {
	rate, ok := p.rates[mealSlot]
	if !ok || rate <= 0 {
		return 0, ErrRateNotConfigured
	}
	return rate, nil
}

func (p *configRateProvider) Currency() string {
	if p.currency == "" {
		return "INR"
	}
	return p.currency
}
