package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"referral_dashboard/internal/config"
	"referral_dashboard/internal/logbus"
	"referral_dashboard/internal/model"
	"referral_dashboard/internal/provider"
	"referral_dashboard/internal/registry"
	"referral_dashboard/internal/utils"
)

const fetchTimeout = 60 * time.Second

const (
	opSummary     = "summary"
	opInvited     = "invited"
	opDaily       = "daily"
	opRedemptions = "redemptions"
)

// Source yields the account set to aggregate over.
type Source interface {
	Snapshot() registry.View
}

type Options struct {
	Registry  Source
	Bus       *logbus.Bus
	Limits    config.LimitsConfig
	Aggregate config.AggregateConfig
	Payout    config.PayoutConfig
	Now       func() time.Time
}

// Aggregator fans every read out to all accounts and merges the selected ones.
// Fetches are cached per account set and date range, so a selection change never refetches.
type Aggregator struct {
	reg Source
	bus *logbus.Bus
	now func() time.Time

	ttl         time.Duration
	maxInFlight int
	windowDays  int

	payout atomic.Value // model.PayoutSettings

	mu    sync.Mutex
	epoch uint64
	cache map[string]cacheEntry

	flight singleflight.Group
}

type cacheEntry struct {
	AtMs    int64
	Version uint64
	Value   any
}

// Result is a merged value plus the accounts it covers and the ones it omits.
type Result[T any] struct {
	Value     T                `json:"value"`
	Accounts  []string         `json:"accounts"`
	Failed    []AccountFailure `json:"failed,omitempty"`
	Version   uint64           `json:"version"`
	FetchedAt int64            `json:"fetchedAt"`

	op string
}

// Partial returns a *PartialFailure when any selected account was omitted.
func (r Result[T]) Partial() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &PartialFailure{Op: r.op, Failures: r.Failed}
}

type DailySeries struct {
	Range   utils.DateRange     `json:"range"`
	Records []model.DailyRecord `json:"records"`
	Totals  model.DailyTotals   `json:"totals"`
}

type RedemptionReport struct {
	Items    []model.Redemption                            `json:"items"`
	Stats    model.RedemptionStats                         `json:"stats"`
	ByStatus map[model.RedemptionStatus][]model.Redemption `json:"byStatus"`
	ByMethod map[string][]model.Redemption                 `json:"byMethod"`
}

func New(opts Options) *Aggregator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	maxInFlight := opts.Limits.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	windowDays := opts.Payout.WindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	a := &Aggregator{
		reg:         opts.Registry,
		bus:         opts.Bus,
		now:         now,
		ttl:         opts.Aggregate.CacheTTL(),
		maxInFlight: maxInFlight,
		windowDays:  windowDays,
		cache:       make(map[string]cacheEntry),
	}
	a.SetPayoutSettings(model.PayoutSettings{
		Threshold:         opts.Payout.ThresholdValue(),
		SettlementLagDays: opts.Payout.SettlementLagDays,
	})
	return a
}

// Invalidate drops every cached fetch; the next read of any kind goes upstream.
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	a.epoch++
	a.cache = make(map[string]cacheEntry)
	a.mu.Unlock()
	a.bus.Log("info", "aggregate cache invalidated", nil)
}

func (a *Aggregator) Summary(ctx context.Context) (Result[model.SummaryTotals], error) {
	view := a.reg.Snapshot()
	f, err := fetch(ctx, a, view, opSummary, utils.DateRange{}, summaryOf)
	if err != nil {
		return Result[model.SummaryTotals]{}, err
	}
	p := f.pick(view)
	return result(opSummary, view, f, p, MergeSummaries(p.values...)), nil
}

func (a *Aggregator) InvitedReward(ctx context.Context) (Result[model.InvitedRewardSummary], error) {
	view := a.reg.Snapshot()
	f, err := fetch(ctx, a, view, opInvited, utils.DateRange{}, func(ctx context.Context, c provider.Client) (model.InvitedRewardSummary, error) {
		return c.GetInvitedRewardSummary(ctx)
	})
	if err != nil {
		return Result[model.InvitedRewardSummary]{}, err
	}
	p := f.pick(view)
	return result(opInvited, view, f, p, MergeInvited(p.values...)), nil
}

func (a *Aggregator) Daily(ctx context.Context, rng utils.DateRange) (Result[DailySeries], error) {
	if !utils.ValidRange(rng) {
		return Result[DailySeries]{}, fmt.Errorf("%w: %s..%s", ErrInvalidRange, rng.From, rng.To)
	}
	view := a.reg.Snapshot()
	f, err := fetch(ctx, a, view, opDaily, rng, dailyOf(rng))
	if err != nil {
		return Result[DailySeries]{}, err
	}
	p := f.pick(view)
	records := MergeDaily(p.values...)
	return result(opDaily, view, f, p, DailySeries{Range: rng, Records: records, Totals: SumDaily(records)}), nil
}

func (a *Aggregator) Redemptions(ctx context.Context) (Result[RedemptionReport], error) {
	view := a.reg.Snapshot()
	f, err := fetch(ctx, a, view, opRedemptions, utils.DateRange{}, func(ctx context.Context, c provider.Client) ([]model.Redemption, error) {
		return c.GetRedemptions(ctx)
	})
	if err != nil {
		return Result[RedemptionReport]{}, err
	}
	p := f.pick(view)
	items := MergeRedemptions(p.values...)
	return result(opRedemptions, view, f, p, RedemptionReport{
		Items:    items,
		Stats:    RedemptionStatsOf(items),
		ByStatus: RedemptionsByStatus(items),
		ByMethod: RedemptionsByMethod(items),
	}), nil
}

// Projection is defined only while exactly one account is selected; otherwise Value is nil.
func (a *Aggregator) Projection(ctx context.Context) (Result[*model.PayoutProjection], error) {
	view := a.reg.Snapshot()
	out := Result[*model.PayoutProjection]{Version: view.Version, Accounts: []string{}, op: "projection"}
	if len(view.Selected) != 1 {
		return out, nil
	}
	account := view.Selected[0].Account()
	rng := utils.LastDays(a.windowDays, a.now())

	var (
		summaries *fanout[model.RevenueSummary]
		series    *fanout[[]model.DailyRecord]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summaries, err = fetch(gctx, a, view, opSummary, utils.DateRange{}, summaryOf)
		return err
	})
	g.Go(func() error {
		var err error
		series, err = fetch(gctx, a, view, opDaily, rng, dailyOf(rng))
		return err
	})
	if err := g.Wait(); err != nil {
		return out, err
	}

	ps, pd := summaries.pick(view), series.pick(view)
	out.FetchedAt = min(summaries.AtMs, series.AtMs)
	out.Failed = append(ps.failed, pd.failed...)
	if len(out.Failed) > 0 || len(ps.values) != 1 || len(pd.values) != 1 {
		return out, nil
	}

	settings := a.PayoutSettings()
	available := MergeSummaries(ps.values[0]).Available
	p := Project(account, available, settings.Threshold, pd.values[0], settings.SettlementLagDays)
	out.Value = &p
	out.Accounts = []string{account}
	return out, nil
}

func summaryOf(ctx context.Context, c provider.Client) (model.RevenueSummary, error) {
	return c.GetCommissionsSummary(ctx)
}

func dailyOf(rng utils.DateRange) func(context.Context, provider.Client) ([]model.DailyRecord, error) {
	return func(ctx context.Context, c provider.Client) ([]model.DailyRecord, error) {
		return c.GetCommissionsDaily(ctx, rng.From, rng.To)
	}
}

func result[T, V any](op string, view registry.View, f *fanout[V], p picked[V], value T) Result[T] {
	return Result[T]{
		Value:     value,
		Accounts:  p.accounts,
		Failed:    p.failed,
		Version:   view.Version,
		FetchedAt: f.AtMs,
		op:        op,
	}
}
