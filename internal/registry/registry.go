package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"referral_dashboard/internal/logbus"
	"referral_dashboard/internal/model"
	"referral_dashboard/internal/notify"
	"referral_dashboard/internal/provider"
)

var (
	ErrEmptyAccount   = errors.New("account is required")
	ErrUnknownAccount = errors.New("unknown account")
	ErrIndexRange     = errors.New("selection index out of range")
)

// Store persists the {account, token} set of the registry.
type Store interface {
	LoadTokens(ctx context.Context) ([]model.AccountToken, error)
	SaveTokens(ctx context.Context, entries []model.AccountToken) error
}

// Factory builds the client of one account. token is nil for a fresh login.
type Factory func(cred model.Credential, token *model.Token, observer provider.TokenObserver) provider.Client

type Options struct {
	Store    Store
	Bus      *logbus.Bus
	Notifier notify.Notifier
	Factory  Factory
	Now      func() time.Time
}

// View is an immutable snapshot of the registry. Version changes whenever the set of
// accounts changes, never on a selection change.
type View struct {
	Version  uint64
	All      []provider.Client
	Selected []provider.Client
}

// IsSelected reports whether account is part of the selected subset.
func (v View) IsSelected(account string) bool {
	for _, c := range v.Selected {
		if c.Account() == account {
			return true
		}
	}
	return false
}

type Registry struct {
	store    Store
	bus      *logbus.Bus
	notifier notify.Notifier
	factory  Factory
	now      func() time.Time

	mu       sync.RWMutex
	all      []provider.Client
	selected map[string]bool
	version  uint64
	// relogin keeps the reason of every account pruned after a failed refresh.
	relogin map[string]string

	saveMu sync.Mutex
	adds   singleflight.Group
}

func New(opts Options) *Registry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		store:    opts.Store,
		bus:      opts.Bus,
		notifier: opts.Notifier,
		factory:  opts.Factory,
		now:      now,
		selected: make(map[string]bool),
		relogin:  make(map[string]string),
	}
}

// Restore rebuilds clients from the stored tokens without signing in again.
// Every restored account starts selected.
func (r *Registry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	entries, err := r.store.LoadTokens(ctx)
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}

	clients := make([]provider.Client, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		account := strings.TrimSpace(e.Account)
		if account == "" || seen[account] {
			continue
		}
		if e.Token.AccessToken == "" && e.Token.RefreshToken == "" {
			continue
		}
		seen[account] = true
		tok := e.Token
		cred := model.Credential{Account: account, DeviceID: tok.DeviceID}
		clients = append(clients, r.factory(cred, &tok, r))
	}

	r.mu.Lock()
	r.all = clients
	r.selected = make(map[string]bool, len(clients))
	for _, c := range clients {
		r.selected[c.Account()] = true
	}
	r.version++
	r.mu.Unlock()

	r.bus.Log("info", "accounts restored", map[string]any{"count": len(clients)})
	return nil
}

// AddAccount signs in a new account. An account that is already known is returned
// as is. A new account joins the selection only when every account was selected before.
func (r *Registry) AddAccount(ctx context.Context, account, password string) (provider.Client, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, ErrEmptyAccount
	}
	if c := r.lookup(account); c != nil {
		return c, nil
	}

	v, err, _ := r.adds.Do(account, func() (any, error) {
		if c := r.lookup(account); c != nil {
			return c, nil
		}
		cred := model.Credential{Account: account, Password: password, DeviceID: uuid.NewString()}
		c := r.factory(cred, nil, r)
		if _, err := c.Login(ctx); err != nil {
			return nil, err
		}

		r.mu.Lock()
		wasAll := len(r.selected) == len(r.all)
		r.all = append([]provider.Client{c}, r.all...)
		if wasAll {
			r.selected[account] = true
		}
		delete(r.relogin, account)
		r.version++
		r.mu.Unlock()

		r.bus.Account(account, "authenticated", nil)
		r.persist(ctx)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(provider.Client), nil
}

func (r *Registry) SelectAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = make(map[string]bool, len(r.all))
	for _, c := range r.all {
		r.selected[c.Account()] = true
	}
}

// SelectOne makes the account at index the only selected one.
func (r *Registry) SelectOne(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.all) {
		return fmt.Errorf("%w: %d of %d", ErrIndexRange, index, len(r.all))
	}
	r.selected = map[string]bool{r.all[index].Account(): true}
	return nil
}

// Remove forgets an account and drops its stored token.
func (r *Registry) Remove(ctx context.Context, account string) error {
	account = strings.TrimSpace(account)
	r.mu.Lock()
	_, pendingRelogin := r.relogin[account]
	delete(r.relogin, account)
	removed := r.dropLocked(account)
	r.mu.Unlock()

	if !removed {
		if pendingRelogin {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}
	r.bus.Account(account, "removed", nil)
	r.persist(ctx)
	return nil
}

func (r *Registry) Snapshot() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v := View{
		Version:  r.version,
		All:      append([]provider.Client(nil), r.all...),
		Selected: make([]provider.Client, 0, len(r.selected)),
	}
	for _, c := range r.all {
		if r.selected[c.Account()] {
			v.Selected = append(v.Selected, c)
		}
	}
	return v
}

// States lists known accounts in order, followed by accounts waiting for a new login.
func (r *Registry) States() []model.AccountState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.AccountState, 0, len(r.all)+len(r.relogin))
	for _, c := range r.all {
		st := model.AccountState{Account: c.Account(), Selected: r.selected[c.Account()]}
		if t := c.Token(); t != nil {
			st.Authenticated = true
			st.Subject = t.Subject
			st.ExpiresAt = t.ExpiresAt
		}
		out = append(out, st)
	}
	for _, account := range sortedKeys(r.relogin) {
		out = append(out, model.AccountState{Account: account, NeedsRelogin: true, LastError: r.relogin[account]})
	}
	return out
}

// NeedsRelogin returns the accounts whose refresh failed, sorted by account.
func (r *Registry) NeedsRelogin() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.relogin)
}

// OnTokenEvent persists every token change. A cleared token marks the account as
// needing a new login before it is pruned and the next save drops it.
func (r *Registry) OnTokenEvent(evt provider.TokenEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if evt.Kind == provider.TokenCleared {
		reason := ""
		if evt.Err != nil {
			reason = evt.Err.Error()
		}
		r.mu.Lock()
		r.relogin[evt.Account] = reason
		r.mu.Unlock()

		r.bus.Account(evt.Account, "needs_relogin", evt.Err)
		if r.notifier != nil {
			r.notifier.NotifyReloginRequired(ctx, notify.ReloginRequiredEvent{
				At:      r.now().UnixMilli(),
				Account: evt.Account,
				Reason:  reason,
			})
		}

		r.mu.Lock()
		r.dropLocked(evt.Account)
		r.mu.Unlock()
	}
	r.persist(ctx)
}

func (r *Registry) lookup(account string) provider.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.all {
		if c.Account() == account {
			return c
		}
	}
	return nil
}

func (r *Registry) dropLocked(account string) bool {
	idx := -1
	for i, c := range r.all {
		if c.Account() == account {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	next := make([]provider.Client, 0, len(r.all)-1)
	next = append(next, r.all[:idx]...)
	next = append(next, r.all[idx+1:]...)
	r.all = next
	delete(r.selected, account)
	if len(r.selected) == 0 {
		for _, c := range r.all {
			r.selected[c.Account()] = true
		}
	}
	r.version++
	return true
}

// persist saves every client that still holds a token. Saves are serialized so the
// last snapshot taken is the last one written.
func (r *Registry) persist(ctx context.Context) {
	if r.store == nil {
		return
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.RLock()
	entries := make([]model.AccountToken, 0, len(r.all))
	for _, c := range r.all {
		if t := c.Token(); t != nil {
			entries = append(entries, model.AccountToken{Account: c.Account(), Token: *t})
		}
	}
	r.mu.RUnlock()

	if err := r.store.SaveTokens(ctx, entries); err != nil {
		r.bus.Log("error", "save tokens failed", map[string]any{"error": err.Error(), "count": len(entries)})
	}
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
