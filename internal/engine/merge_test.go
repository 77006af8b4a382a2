package engine

import (
	"fmt"
	"testing"
	"testing/quick"
	"time"

	"github.com/shopspring/decimal"

	"referral_dashboard/internal/model"
)

type genRecord struct {
	Day    uint8
	New    int16
	Paid   int16
	Amount int32
	Comm   int32
}

func toSeries(in []genRecord) []model.DailyRecord {
	out := make([]model.DailyRecord, 0, len(in))
	for _, g := range in {
		out = append(out, model.DailyRecord{
			Day:            fmt.Sprintf("2024-01-%02d", int(g.Day%7)+1),
			NewUsers:       int64(g.New),
			PaidUsers:      int64(g.Paid),
			PaidAmount:     decimal.New(int64(g.Amount), -2),
			PaidCommission: decimal.New(int64(g.Comm), -2),
		})
	}
	return out
}

func sameSeries(a, b []model.DailyRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Day != b[i].Day ||
			a[i].NewUsers != b[i].NewUsers ||
			a[i].PaidUsers != b[i].PaidUsers ||
			!a[i].PaidAmount.Equal(b[i].PaidAmount) ||
			!a[i].PaidCommission.Equal(b[i].PaidCommission) {
			return false
		}
	}
	return true
}

func TestMergeDailyIsCommutative(t *testing.T) {
	f := func(a, b []genRecord) bool {
		x, y := toSeries(a), toSeries(b)
		return sameSeries(MergeDaily(x, y), MergeDaily(y, x))
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestMergeDailyIsAssociative(t *testing.T) {
	f := func(a, b, c []genRecord) bool {
		x, y, z := toSeries(a), toSeries(b), toSeries(c)
		left := MergeDaily(MergeDaily(x, y), z)
		right := MergeDaily(x, MergeDaily(y, z))
		flat := MergeDaily(x, y, z)
		return sameSeries(left, right) && sameSeries(left, flat)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestMergeDailyIsSortedAscending(t *testing.T) {
	f := func(a, b []genRecord) bool {
		out := MergeDaily(toSeries(a), toSeries(b))
		for i := 1; i < len(out); i++ {
			if out[i-1].Day >= out[i].Day {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestMergeDailySumsEqualDays(t *testing.T) {
	a := []model.DailyRecord{{Day: "2024-01-01", PaidCommission: decimal.NewFromInt(10)}}
	b := []model.DailyRecord{{Day: "2024-01-01", PaidCommission: decimal.NewFromInt(5)}}

	out := MergeDaily(a, b)
	if len(out) != 1 || out[0].Day != "2024-01-01" || !out[0].PaidCommission.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("merged = %+v", out)
	}
}

func TestMergeDailyWithItselfDoubles(t *testing.T) {
	a := []model.DailyRecord{
		{Day: "2024-01-02", NewUsers: 3, PaidUsers: 1, PaidAmount: decimal.RequireFromString("9.99"), PaidCommission: decimal.RequireFromString("2.5")},
		{Day: "2024-01-01", NewUsers: 1},
	}
	out := MergeDaily(a, a)
	if len(out) != 2 || out[0].Day != "2024-01-01" {
		t.Fatalf("merged = %+v", out)
	}
	got := out[1]
	if got.NewUsers != 6 || got.PaidUsers != 2 ||
		!got.PaidAmount.Equal(decimal.RequireFromString("19.98")) ||
		!got.PaidCommission.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("self merge must sum, got %+v", got)
	}
}

func TestMergeDailyDoesNotMutateInput(t *testing.T) {
	a := []model.DailyRecord{{Day: "2024-01-01", NewUsers: 1}}
	_ = MergeDaily(a, a)
	if a[0].NewUsers != 1 {
		t.Fatalf("input mutated: %+v", a[0])
	}
}

func TestSumDaily(t *testing.T) {
	got := SumDaily([]model.DailyRecord{
		{NewUsers: 2, PaidUsers: 1, PaidAmount: decimal.NewFromInt(10), PaidCommission: decimal.NewFromInt(3)},
		{NewUsers: 1, PaidUsers: 1, PaidAmount: decimal.NewFromInt(5), PaidCommission: decimal.NewFromInt(1)},
	})
	if got.NewUsers != 3 || got.PaidUsers != 2 || !got.PaidAmount.Equal(decimal.NewFromInt(15)) || !got.PaidCommission.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("totals = %+v", got)
	}
}

func TestMergeSummariesTreatsAbsentAsZero(t *testing.T) {
	d := func(s string) *decimal.Decimal {
		v := decimal.RequireFromString(s)
		return &v
	}
	got := MergeSummaries(
		model.RevenueSummary{Total: d("100"), Available: d("40")},
		model.RevenueSummary{Total: d("80.5"), Pending: d("3"), Available: d("70")},
	)
	if !got.Total.Equal(decimal.RequireFromString("180.5")) || !got.Pending.Equal(decimal.NewFromInt(3)) || !got.Available.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("totals = %+v", got)
	}
}

func TestMergeInvited(t *testing.T) {
	got := MergeInvited(
		model.InvitedRewardSummary{Total: decimal.NewFromInt(2), TotalPaidNums: 1, TotalRecommend: 4},
		model.InvitedRewardSummary{Total: decimal.NewFromInt(3), TotalPaidNums: 2, TotalRecommend: 1, Yesterday: decimal.NewFromInt(1)},
	)
	if !got.Total.Equal(decimal.NewFromInt(5)) || got.TotalPaidNums != 3 || got.TotalRecommend != 5 || !got.Yesterday.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("merged = %+v", got)
	}
}

func TestMergeRedemptionsAndStats(t *testing.T) {
	at := func(day int) model.Timestamp {
		return model.Timestamp{Time: time.Date(2024, 2, day, 0, 0, 0, 0, time.UTC)}
	}
	a := []model.Redemption{
		{Time: at(3), Amount: decimal.NewFromInt(30), Status: model.RedemptionSucceed, Method: "paypal"},
		{Time: at(1), Amount: decimal.NewFromInt(10), Status: model.RedemptionPending, Method: "paypal"},
	}
	b := []model.Redemption{
		{Time: at(2), Amount: decimal.NewFromInt(20), Status: model.RedemptionError, Method: "bank"},
	}

	items := MergeRedemptions(a, b)
	for i, want := range []int64{10, 20, 30} {
		if !items[i].Amount.Equal(decimal.NewFromInt(want)) {
			t.Fatalf("items[%d] = %+v", i, items[i])
		}
	}

	s := RedemptionStatsOf(items)
	if s.Total != 3 || !s.TotalAmount.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("totals = %+v", s)
	}
	if s.PendingCount != 1 || s.SuccessCount != 1 || s.ErrorCount != 1 {
		t.Fatalf("counts = %+v", s)
	}
	if !s.ErrorAmount.Equal(decimal.NewFromInt(20)) || !s.SuccessAmount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("amounts = %+v", s)
	}

	byMethod := RedemptionsByMethod(items)
	if len(byMethod["paypal"]) != 2 || len(byMethod["bank"]) != 1 {
		t.Fatalf("by method = %+v", byMethod)
	}
	byStatus := RedemptionsByStatus(items)
	if len(byStatus[model.RedemptionPending]) != 1 || len(byStatus[model.RedemptionError]) != 1 {
		t.Fatalf("by status = %+v", byStatus)
	}
}
