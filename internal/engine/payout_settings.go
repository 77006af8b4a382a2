package engine

import (
	"github.com/shopspring/decimal"

	"referral_dashboard/internal/model"
)

func DefaultPayoutSettings() model.PayoutSettings {
	return model.PayoutSettings{
		Threshold:         decimal.NewFromInt(100),
		SettlementLagDays: 31,
	}
}

func normalizePayoutSettings(in model.PayoutSettings) model.PayoutSettings {
	out := in
	if !out.Threshold.IsPositive() {
		out.Threshold = decimal.NewFromInt(100)
	}
	if out.SettlementLagDays <= 0 {
		out.SettlementLagDays = 31
	}
	if out.SettlementLagDays > 366 {
		out.SettlementLagDays = 366
	}
	return out
}

func (a *Aggregator) PayoutSettings() model.PayoutSettings {
	if a == nil {
		return DefaultPayoutSettings()
	}
	v := a.payout.Load()
	if v == nil {
		return DefaultPayoutSettings()
	}
	if s, ok := v.(model.PayoutSettings); ok {
		return normalizePayoutSettings(s)
	}
	return DefaultPayoutSettings()
}

func (a *Aggregator) SetPayoutSettings(next model.PayoutSettings) model.PayoutSettings {
	next = normalizePayoutSettings(next)
	if a == nil {
		return next
	}
	a.payout.Store(next)
	return next
}
