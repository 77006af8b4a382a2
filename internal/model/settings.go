package model

import "github.com/shopspring/decimal"

type EmailSettings struct {
	Enabled  bool   `json:"enabled"`
	Email    string `json:"email"`
	AuthCode string `json:"authCode,omitempty"`
}

type PayoutSettings struct {
	// Threshold is the minimum available balance the platform pays out, in settlement currency.
	Threshold decimal.Decimal `json:"threshold"`
	// SettlementLagDays is the delay between commission accrual and payout eligibility.
	SettlementLagDays int `json:"settlementLagDays"`
}
