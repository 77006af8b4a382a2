package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	"referral_dashboard/internal/model"
)

func TestProject(t *testing.T) {
	series := []model.DailyRecord{
		{Day: "2024-03-05", PaidCommission: decimal.NewFromInt(15)},
		{Day: "2024-03-01", PaidCommission: decimal.NewFromInt(30)},
	}

	tests := []struct {
		name      string
		available int64
		series    []model.DailyRecord
		reached   bool
		trigger   string
		target    string
	}{
		{name: "covered on second day", available: 60, series: series, trigger: "2024-03-05", target: "2024-04-05"},
		{name: "already reached", available: 100, series: series, reached: true},
		{name: "window too short", available: 10, series: series},
		{name: "no data", available: 60},
		{name: "covered on first day", available: 75, series: series, trigger: "2024-03-01", target: "2024-04-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Project("a@x.com", decimal.NewFromInt(tt.available), decimal.NewFromInt(100), tt.series, 31)
			if p.Reached != tt.reached || p.TriggerDay != tt.trigger || p.TargetDate != tt.target {
				t.Fatalf("projection = %+v", p)
			}
			if !tt.reached && !p.Need.Equal(decimal.NewFromInt(100-tt.available)) {
				t.Fatalf("need = %s", p.Need)
			}
		})
	}
}
