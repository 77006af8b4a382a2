package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"referral_dashboard/internal/model"
)

// MergeDaily sums records of equal day across groups and returns them ascending by day.
func MergeDaily(groups ...[]model.DailyRecord) []model.DailyRecord {
	byDay := make(map[string]*model.DailyRecord)
	for _, g := range groups {
		for _, r := range g {
			acc, ok := byDay[r.Day]
			if !ok {
				cp := r
				byDay[r.Day] = &cp
				continue
			}
			acc.NewUsers += r.NewUsers
			acc.PaidUsers += r.PaidUsers
			acc.PaidAmount = acc.PaidAmount.Add(r.PaidAmount)
			acc.PaidCommission = acc.PaidCommission.Add(r.PaidCommission)
		}
	}

	out := make([]model.DailyRecord, 0, len(byDay))
	for _, r := range byDay {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

func SumDaily(records []model.DailyRecord) model.DailyTotals {
	var t model.DailyTotals
	for _, r := range records {
		t.NewUsers += r.NewUsers
		t.PaidUsers += r.PaidUsers
		t.PaidAmount = t.PaidAmount.Add(r.PaidAmount)
		t.PaidCommission = t.PaidCommission.Add(r.PaidCommission)
	}
	return t
}

// MergeSummaries adds the additive fields; absent amounts count as zero.
func MergeSummaries(summaries ...model.RevenueSummary) model.SummaryTotals {
	var t model.SummaryTotals
	for _, s := range summaries {
		t.Total = t.Total.Add(orZero(s.Total))
		t.Pending = t.Pending.Add(orZero(s.Pending))
		t.Available = t.Available.Add(orZero(s.Available))
	}
	return t
}

func MergeInvited(items ...model.InvitedRewardSummary) model.InvitedRewardSummary {
	var t model.InvitedRewardSummary
	for _, s := range items {
		t.Total = t.Total.Add(s.Total)
		t.TotalPaidNums += s.TotalPaidNums
		t.TotalRecommend += s.TotalRecommend
		t.Yesterday = t.Yesterday.Add(s.Yesterday)
	}
	return t
}

// MergeRedemptions concatenates groups ordered by time. Equal times keep group order.
func MergeRedemptions(groups ...[]model.Redemption) []model.Redemption {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	out := make([]model.Redemption, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time.Time) })
	return out
}

func RedemptionStatsOf(items []model.Redemption) model.RedemptionStats {
	var s model.RedemptionStats
	for _, r := range items {
		s.Total++
		s.TotalAmount = s.TotalAmount.Add(r.Amount)
		switch r.Status {
		case model.RedemptionPending:
			s.PendingCount++
			s.PendingAmount = s.PendingAmount.Add(r.Amount)
		case model.RedemptionSucceed:
			s.SuccessCount++
			s.SuccessAmount = s.SuccessAmount.Add(r.Amount)
		case model.RedemptionError:
			s.ErrorCount++
			s.ErrorAmount = s.ErrorAmount.Add(r.Amount)
		}
	}
	return s
}

func RedemptionsByMethod(items []model.Redemption) map[string][]model.Redemption {
	out := make(map[string][]model.Redemption)
	for _, r := range items {
		out[r.Method] = append(out[r.Method], r)
	}
	return out
}

func RedemptionsByStatus(items []model.Redemption) map[model.RedemptionStatus][]model.Redemption {
	out := map[model.RedemptionStatus][]model.Redemption{
		model.RedemptionPending: {},
		model.RedemptionSucceed: {},
		model.RedemptionError:   {},
	}
	for _, r := range items {
		if _, ok := out[r.Status]; ok {
			out[r.Status] = append(out[r.Status], r)
		}
	}
	return out
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
