package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"referral_dashboard/internal/config"
	"referral_dashboard/internal/logbus"
	"referral_dashboard/internal/model"
	"referral_dashboard/internal/provider"
	"referral_dashboard/internal/registry"
	"referral_dashboard/internal/utils"
)

type stubClient struct {
	account   string
	available string
	daily     []model.DailyRecord
	fail      error
	gate      chan struct{}

	summaryCalls atomic.Int32
	dailyCalls   atomic.Int32
}

func (c *stubClient) Account() string                            { return c.account }
func (c *stubClient) Token() *model.Token                        { return &model.Token{Account: c.account} }
func (c *stubClient) Login(context.Context) (model.Token, error) { return model.Token{}, nil }
func (c *stubClient) RefreshToken(context.Context) (string, error) {
	return "", nil
}
func (c *stubClient) GetUserInfo(context.Context) (model.UserInfo, error) {
	return model.UserInfo{}, nil
}

func (c *stubClient) GetCommissionsSummary(context.Context) (model.RevenueSummary, error) {
	c.summaryCalls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if c.fail != nil {
		return model.RevenueSummary{}, c.fail
	}
	v := decimal.RequireFromString(c.available)
	return model.RevenueSummary{Available: &v, Total: &v}, nil
}

func (c *stubClient) GetInvitedRewardSummary(context.Context) (model.InvitedRewardSummary, error) {
	if c.fail != nil {
		return model.InvitedRewardSummary{}, c.fail
	}
	return model.InvitedRewardSummary{TotalPaidNums: 1, TotalRecommend: 2}, nil
}

func (c *stubClient) GetCommissionsDaily(context.Context, string, string) ([]model.DailyRecord, error) {
	c.dailyCalls.Add(1)
	if c.fail != nil {
		return nil, c.fail
	}
	return c.daily, nil
}

func (c *stubClient) GetRedemptions(context.Context) ([]model.Redemption, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	return []model.Redemption{{Amount: decimal.NewFromInt(1), Status: model.RedemptionSucceed, Method: c.account}}, nil
}

type stubSource struct {
	mu   sync.Mutex
	view registry.View
}

func (s *stubSource) Snapshot() registry.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *stubSource) set(version uint64, all []*stubClient, selected ...int) {
	v := registry.View{Version: version}
	for _, c := range all {
		v.All = append(v.All, c)
	}
	if len(selected) == 0 {
		v.Selected = append(v.Selected, v.All...)
	}
	for _, i := range selected {
		v.Selected = append(v.Selected, all[i])
	}
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
}

func newAggregator(src *stubSource, ttlMs int) *Aggregator {
	return New(Options{
		Registry:  src,
		Bus:       logbus.New(50),
		Aggregate: config.AggregateConfig{CacheTTLMs: ttlMs},
		Payout:    config.PayoutConfig{Threshold: "100", SettlementLagDays: 31, WindowDays: 30},
		Now:       func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) },
	})
}

func TestSummarySkipsFailingAccount(t *testing.T) {
	remote := &provider.RemoteError{Op: "summary", Status: 502, Message: "bad gateway"}
	clients := []*stubClient{
		{account: "a", available: "40"},
		{account: "b", fail: remote},
		{account: "c", available: "70"},
	}
	src := &stubSource{}
	src.set(1, clients)
	agg := newAggregator(src, 0)

	res, err := agg.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(res.Accounts) != len(clients)-1 {
		t.Fatalf("accounts = %v", res.Accounts)
	}
	if !res.Value.Available.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("available = %s", res.Value.Available)
	}
	if len(res.Failed) != 1 || res.Failed[0].Account != "b" || res.Failed[0].Status != 502 {
		t.Fatalf("failed = %+v", res.Failed)
	}

	var pf *PartialFailure
	if !errors.As(res.Partial(), &pf) || len(pf.Failures) != 1 {
		t.Fatalf("partial = %v", res.Partial())
	}
	var re *provider.RemoteError
	if !errors.As(res.Partial(), &re) {
		t.Fatalf("partial should unwrap to the remote error")
	}
}

func TestSelectionFiltersWithoutRefetch(t *testing.T) {
	clients := []*stubClient{{account: "a", available: "40"}, {account: "b", available: "70"}}
	src := &stubSource{}
	src.set(1, clients)
	agg := newAggregator(src, 60_000)
	ctx := context.Background()

	if _, err := agg.Summary(ctx); err != nil {
		t.Fatalf("summary: %v", err)
	}
	src.set(1, clients, 1)
	res, err := agg.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !res.Value.Available.Equal(decimal.NewFromInt(70)) || len(res.Accounts) != 1 || res.Accounts[0] != "b" {
		t.Fatalf("selected summary = %+v", res)
	}
	for _, c := range clients {
		if n := c.summaryCalls.Load(); n != 1 {
			t.Fatalf("%s fetched %d times", c.account, n)
		}
	}
}

func TestNewAccountSetRefetches(t *testing.T) {
	a := &stubClient{account: "a", available: "40"}
	src := &stubSource{}
	src.set(1, []*stubClient{a})
	agg := newAggregator(src, 60_000)
	ctx := context.Background()

	_, _ = agg.Summary(ctx)
	b := &stubClient{account: "b", available: "5"}
	src.set(2, []*stubClient{b, a})

	res, err := agg.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !res.Value.Available.Equal(decimal.NewFromInt(45)) || res.Version != 2 {
		t.Fatalf("summary = %+v", res)
	}
	if a.summaryCalls.Load() != 2 {
		t.Fatalf("stale account set served from cache")
	}
}

func TestDailyRangeChangeRefetchesAndInvalidate(t *testing.T) {
	a := &stubClient{account: "a", daily: []model.DailyRecord{{Day: "2024-03-01", PaidCommission: decimal.NewFromInt(1)}}}
	src := &stubSource{}
	src.set(1, []*stubClient{a})
	agg := newAggregator(src, 60_000)
	ctx := context.Background()

	r1 := utils.DateRange{From: "2024-03-01", To: "2024-03-07"}
	r2 := utils.DateRange{From: "2024-02-01", To: "2024-03-07"}
	_, _ = agg.Daily(ctx, r1)
	_, _ = agg.Daily(ctx, r1)
	if n := a.dailyCalls.Load(); n != 1 {
		t.Fatalf("calls after cached read = %d", n)
	}
	_, _ = agg.Daily(ctx, r2)
	if n := a.dailyCalls.Load(); n != 2 {
		t.Fatalf("calls after range change = %d", n)
	}
	agg.Invalidate()
	res, err := agg.Daily(ctx, r2)
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if n := a.dailyCalls.Load(); n != 3 {
		t.Fatalf("calls after invalidate = %d", n)
	}
	if len(res.Value.Records) != 1 || !res.Value.Totals.PaidCommission.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("series = %+v", res.Value)
	}
}

func TestDailyRejectsInvalidRange(t *testing.T) {
	src := &stubSource{}
	src.set(1, nil)
	agg := newAggregator(src, 0)
	_, err := agg.Daily(context.Background(), utils.DateRange{From: "2024-03-08", To: "2024-03-01"})
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("err = %v", err)
	}
}

func TestConcurrentReadsShareOneFetch(t *testing.T) {
	a := &stubClient{account: "a", available: "1", gate: make(chan struct{})}
	src := &stubSource{}
	src.set(1, []*stubClient{a})
	agg := newAggregator(src, 60_000)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := agg.Summary(context.Background()); err != nil {
				t.Errorf("summary: %v", err)
			}
		}()
	}
	deadline := time.Now().Add(2 * time.Second)
	for a.summaryCalls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(a.gate)
	wg.Wait()

	if n := a.summaryCalls.Load(); n != 1 {
		t.Fatalf("summary calls = %d", n)
	}
}

func TestProjectionUndefinedForTwoAccounts(t *testing.T) {
	clients := []*stubClient{{account: "a", available: "40"}, {account: "b", available: "70"}}
	src := &stubSource{}
	src.set(1, clients)
	agg := newAggregator(src, 0)

	res, err := agg.Projection(context.Background())
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	if res.Value != nil {
		t.Fatalf("projection over two accounts = %+v", res.Value)
	}
	if clients[0].summaryCalls.Load() != 0 {
		t.Fatalf("undefined projection should not fetch")
	}
}

func TestProjectionForOneAccount(t *testing.T) {
	clients := []*stubClient{
		{account: "a", available: "40"},
		{account: "b", available: "60", daily: []model.DailyRecord{
			{Day: "2024-03-01", PaidCommission: decimal.NewFromInt(30)},
			{Day: "2024-03-05", PaidCommission: decimal.NewFromInt(15)},
		}},
	}
	src := &stubSource{}
	src.set(1, clients, 1)
	agg := newAggregator(src, 0)

	res, err := agg.Projection(context.Background())
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	p := res.Value
	if p == nil {
		t.Fatalf("projection undefined, failed = %+v", res.Failed)
	}
	if p.Account != "b" || p.Reached || p.TargetDate != "2024-04-05" || !p.Need.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("projection = %+v", p)
	}
}

func TestProjectionUsesPayoutSettings(t *testing.T) {
	clients := []*stubClient{{account: "a", available: "60"}}
	src := &stubSource{}
	src.set(1, clients)
	agg := newAggregator(src, 0)
	agg.SetPayoutSettings(model.PayoutSettings{Threshold: decimal.NewFromInt(50)})

	res, err := agg.Projection(context.Background())
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	if res.Value == nil || !res.Value.Reached {
		t.Fatalf("projection = %+v", res.Value)
	}
	if got := agg.PayoutSettings().SettlementLagDays; got != 31 {
		t.Fatalf("lag = %d", got)
	}
}

func TestRedemptionsMergeSelected(t *testing.T) {
	clients := []*stubClient{{account: "a"}, {account: "b"}, {account: "c", fail: errors.New("boom")}}
	src := &stubSource{}
	src.set(1, clients, 0, 2)
	agg := newAggregator(src, 0)

	res, err := agg.Redemptions(context.Background())
	if err != nil {
		t.Fatalf("redemptions: %v", err)
	}
	if res.Value.Stats.Total != 1 || len(res.Value.ByMethod["a"]) != 1 {
		t.Fatalf("report = %+v", res.Value)
	}
	if len(res.Failed) != 1 || res.Failed[0].Account != "c" {
		t.Fatalf("failed = %+v", res.Failed)
	}
}
