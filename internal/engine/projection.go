package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"referral_dashboard/internal/model"
)

const dayLayout = "2006-01-02"

// Project finds the day the running commission of series covers threshold-available
// and shifts it by the settlement lag. Reached is set only when available already
// meets the threshold.
func Project(account string, available, threshold decimal.Decimal, series []model.DailyRecord, lagDays int) model.PayoutProjection {
	p := model.PayoutProjection{Account: account, Threshold: threshold, Available: available}
	if available.GreaterThanOrEqual(threshold) {
		p.Reached = true
		return p
	}
	p.Need = threshold.Sub(available)

	days := append([]model.DailyRecord(nil), series...)
	sort.SliceStable(days, func(i, j int) bool { return days[i].Day < days[j].Day })

	sum := decimal.Zero
	for _, r := range days {
		sum = sum.Add(r.PaidCommission)
		if sum.LessThan(p.Need) {
			continue
		}
		p.TriggerDay = r.Day
		if d, err := time.Parse(dayLayout, r.Day); err == nil {
			p.TargetDate = d.AddDate(0, 0, lagDays).Format(dayLayout)
		}
		break
	}
	return p
}
