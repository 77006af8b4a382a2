package model

import "github.com/shopspring/decimal"

// DailyRecord is one day of one account's commission series. Day is YYYY-MM-DD.
type DailyRecord struct {
	Day            string          `json:"day"`
	NewUsers       int64           `json:"new_users"`
	PaidUsers      int64           `json:"paid_users"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	PaidCommission decimal.Decimal `json:"paid_amount_commission"`
}

type DailyTotals struct {
	NewUsers       int64           `json:"new_users"`
	PaidUsers      int64           `json:"paid_users"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	PaidCommission decimal.Decimal `json:"paid_amount_commission"`
}

type SubAccount struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
}

// CommissionType values seen upstream. Older data may carry the literal CPA/CPS.
const (
	CommissionCPS       = "C0"
	CommissionCPAOrCPS  = "C1"
	CommissionCPAAndCPS = "C2"
)

// RevenueSummary is the per-account earnings overview. Nil amounts were absent upstream.
type RevenueSummary struct {
	Total              *decimal.Decimal `json:"total,omitempty"`
	Pending            *decimal.Decimal `json:"pending,omitempty"`
	Available          *decimal.Decimal `json:"available,omitempty"`
	Country            string           `json:"country,omitempty"`
	IsSubAccount       bool             `json:"is_sub_account,omitempty"`
	SubAccounts        []SubAccount     `json:"sub_accounts,omitempty"`
	CommissionType     string           `json:"commission_type,omitempty"`
	UnitPrice1         *decimal.Decimal `json:"unit_price_1,omitempty"`
	UnitPrice2         *decimal.Decimal `json:"unit_price_2,omitempty"`
	UnitPriceOther     *decimal.Decimal `json:"unit_price_other,omitempty"`
	CPSRatio           *decimal.Decimal `json:"cps_ratio,omitempty"`
	DisplayCustomAdmin bool             `json:"display_custom_admin,omitempty"`
}

// SummaryTotals holds only the additive fields of RevenueSummary.
type SummaryTotals struct {
	Total     decimal.Decimal `json:"total"`
	Pending   decimal.Decimal `json:"pending"`
	Available decimal.Decimal `json:"available"`
}

type InvitedRewardSummary struct {
	Total          decimal.Decimal `json:"total"`
	TotalPaidNums  int64           `json:"totalPaidNums"`
	TotalRecommend int64           `json:"totalRecommend"`
	Yesterday      decimal.Decimal `json:"yesterday"`
}

// PayoutProjection answers "when does the available balance reach the payout threshold".
// TargetDate is empty when the window never covers the missing amount.
type PayoutProjection struct {
	Account    string          `json:"account"`
	Threshold  decimal.Decimal `json:"threshold"`
	Available  decimal.Decimal `json:"available"`
	Need       decimal.Decimal `json:"need"`
	Reached    bool            `json:"reached"`
	TriggerDay string          `json:"triggerDay,omitempty"`
	TargetDate string          `json:"targetDate,omitempty"`
}
