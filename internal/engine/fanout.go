package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"referral_dashboard/internal/provider"
	"referral_dashboard/internal/registry"
	"referral_dashboard/internal/utils"
)

// fanout holds one result slot per account of the view, in view order.
type fanout[T any] struct {
	AtMs     int64
	Accounts []string
	Values   []T
	Errs     []error
}

type picked[T any] struct {
	accounts []string
	values   []T
	failed   []AccountFailure
}

// pick keeps the selected accounts only. Failures of unselected accounts are not reported.
func (f *fanout[T]) pick(view registry.View) picked[T] {
	p := picked[T]{accounts: []string{}}
	for i, account := range f.Accounts {
		if !view.IsSelected(account) {
			continue
		}
		if err := f.Errs[i]; err != nil {
			p.failed = append(p.failed, AccountFailure{
				Account: account,
				Error:   err.Error(),
				Status:  provider.StatusOf(err),
				Err:     err,
			})
			continue
		}
		p.accounts = append(p.accounts, account)
		p.values = append(p.values, f.Values[i])
	}
	return p
}

// fetch returns the cached fan-out for (view version, op, range) or runs one. Identical
// concurrent fetches share a single run; a caller leaving early does not cancel it.
func fetch[T any](ctx context.Context, a *Aggregator, view registry.View, op string, rng utils.DateRange, call func(context.Context, provider.Client) (T, error)) (*fanout[T], error) {
	a.mu.Lock()
	key := fmt.Sprintf("%d|%d|%s|%s|%s", view.Version, a.epoch, op, rng.From, rng.To)
	if v, ok := a.cachedLocked(key); ok {
		a.mu.Unlock()
		return v.(*fanout[T]), nil
	}
	a.mu.Unlock()

	ch := a.flight.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		out := fanOut(fctx, a, view, op, call)
		a.store(key, view.Version, out)
		return out, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*fanout[T]), nil
	}
}

func fanOut[T any](ctx context.Context, a *Aggregator, view registry.View, op string, call func(context.Context, provider.Client) (T, error)) *fanout[T] {
	n := len(view.All)
	out := &fanout[T]{
		Accounts: make([]string, n),
		Values:   make([]T, n),
		Errs:     make([]error, n),
	}

	var g errgroup.Group
	g.SetLimit(a.maxInFlight)
	for i, c := range view.All {
		out.Accounts[i] = c.Account()
		g.Go(func() error {
			v, err := call(ctx, c)
			if err != nil {
				out.Errs[i] = err
				a.bus.Log("warn", "account fetch failed", map[string]any{
					"account": c.Account(),
					"op":      op,
					"error":   err.Error(),
				})
				return nil
			}
			out.Values[i] = v
			return nil
		})
	}
	_ = g.Wait()
	out.AtMs = a.now().UnixMilli()
	return out
}

func (a *Aggregator) cachedLocked(key string) (any, bool) {
	if a.ttl <= 0 {
		return nil, false
	}
	entry, ok := a.cache[key]
	if !ok {
		return nil, false
	}
	if a.now().UnixMilli()-entry.AtMs > a.ttl.Milliseconds() {
		delete(a.cache, key)
		return nil, false
	}
	return entry.Value, true
}

func (a *Aggregator) store(key string, version uint64, v any) {
	if a.ttl <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	nowMs := a.now().UnixMilli()
	for k, e := range a.cache {
		if e.Version < version || nowMs-e.AtMs > a.ttl.Milliseconds() {
			delete(a.cache, k)
		}
	}
	a.cache[key] = cacheEntry{AtMs: nowMs, Version: version, Value: v}
}
