package standard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"referral_dashboard/internal/config"
	"referral_dashboard/internal/logbus"
	"referral_dashboard/internal/model"
	"referral_dashboard/internal/provider"
	"referral_dashboard/internal/utils"
)

// Host selects which upstream base URL a request goes to.
type Host int

const (
	HostUser Host = iota
	HostAPI
)

func (h Host) String() string {
	if h == HostAPI {
		return "api"
	}
	return "user"
}

type Options struct {
	Provider config.ProviderConfig
	Proxy    config.ProxyConfig
	Limits   config.LimitsConfig
	Bus      *logbus.Bus
	// Limiter is shared by every client of the process; nil disables the global limit.
	Limiter  *rate.Limiter
	Observer provider.TokenObserver
	Now      func() time.Time
}

// AuthClient is the authenticated session of exactly one account.
type AuthClient struct {
	cfg      config.ProviderConfig
	bus      *logbus.Bus
	observer provider.TokenObserver
	now      func() time.Time

	cred model.Credential

	user *resty.Client
	api  *resty.Client

	global  *rate.Limiter
	account *rate.Limiter

	mu    sync.RWMutex
	token *model.Token

	flight singleflight.Group
}

var _ provider.Client = (*AuthClient)(nil)

// New builds a client. The device id comes from the token, then the credential, and is
// generated only when neither carries one.
func New(cred model.Credential, token *model.Token, opts Options) *AuthClient {
	if token != nil && token.DeviceID != "" {
		cred.DeviceID = token.DeviceID
	}
	if cred.DeviceID == "" {
		cred.DeviceID = uuid.NewString()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	perQPS := opts.Limits.PerAccountQPS
	if perQPS <= 0 {
		perQPS = 5
	}
	perBurst := opts.Limits.PerAccountBurst
	if perBurst <= 0 {
		perBurst = 5
	}

	c := &AuthClient{
		cfg:      opts.Provider,
		bus:      opts.Bus,
		observer: opts.Observer,
		now:      now,
		cred:     cred,
		global:   opts.Limiter,
		account:  rate.NewLimiter(rate.Limit(perQPS), perBurst),
	}
	if token != nil {
		t := *token
		t.Account = cred.Account
		t.DeviceID = cred.DeviceID
		c.token = &t
	}
	c.user = c.newClient(opts.Provider.UserBaseURL, opts.Proxy)
	c.api = c.newClient(opts.Provider.APIBaseURL, opts.Proxy)
	return c
}

func (c *AuthClient) Account() string { return c.cred.Account }

func (c *AuthClient) DeviceID() string { return c.cred.DeviceID }

func (c *AuthClient) Token() *model.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return nil
	}
	t := *c.token
	return &t
}

func (c *AuthClient) setToken(t *model.Token) {
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
}

func (c *AuthClient) emit(kind provider.TokenEventKind, t *model.Token, err error) {
	if c.observer == nil {
		return
	}
	var cp *model.Token
	if t != nil {
		v := *t
		cp = &v
	}
	c.observer.OnTokenEvent(provider.TokenEvent{Account: c.cred.Account, Kind: kind, Token: cp, Err: err})
}

// Request performs an authenticated call and returns the raw JSON body. GET params are
// sent as the query string, other methods send them as a JSON object.
// A 401 caused by an expired access token is refreshed and retried exactly once.
func (c *AuthClient) Request(ctx context.Context, host Host, method, path string, params map[string]string) (json.RawMessage, error) {
	tok := c.Token()
	if tok == nil {
		return nil, &provider.AuthError{Account: c.cred.Account, Op: "request", Err: provider.ErrNotLoggedIn}
	}

	raw, err := c.do(ctx, host, method, path, params, tok.AccessToken)
	var expired *provider.TokenExpiredError
	if !errors.As(err, &expired) {
		return raw, err
	}

	c.bus.Log("info", "access token expired, refreshing", map[string]any{"account": c.cred.Account, "path": path})
	access, err := c.refresh(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	raw, err = c.do(ctx, host, method, path, params, access)
	if errors.As(err, &expired) {
		return nil, expired.Remote
	}
	return raw, err
}

func (c *AuthClient) do(ctx context.Context, host Host, method, path string, params map[string]string, access string) (json.RawMessage, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req := c.clientFor(host).R().SetContext(ctx)
	if access != "" {
		req.SetAuthToken(access)
	}
	if method == http.MethodGet || method == http.MethodDelete {
		req.SetQueryParams(params)
	} else if params != nil {
		req.SetBody(params)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if !resp.IsSuccess() {
		re := remoteError(method+" "+path, resp)
		if re.Status == http.StatusUnauthorized && isTokenExpired(re) {
			return nil, &provider.TokenExpiredError{Remote: re}
		}
		return nil, re
	}
	return json.RawMessage(resp.Body()), nil
}

// post sends an unauthenticated JSON request used by the sign-in family of endpoints.
func (c *AuthClient) post(ctx context.Context, path string, body, out any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	resp, err := c.user.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	if !resp.IsSuccess() {
		return remoteError("POST "+path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *AuthClient) wait(ctx context.Context) error {
	if c.global != nil {
		if err := c.global.Wait(ctx); err != nil {
			return err
		}
	}
	return c.account.Wait(ctx)
}

func (c *AuthClient) clientFor(h Host) *resty.Client {
	if h == HostAPI {
		return c.api
	}
	return c.user
}

func (c *AuthClient) newClient(baseURL string, proxyCfg config.ProxyConfig) *resty.Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(c.cfg.Timeout()).
		SetRetryCount(c.cfg.Retry.Count).
		SetRetryWaitTime(c.cfg.Retry.Wait()).
		SetRetryMaxWaitTime(c.cfg.Retry.MaxWait()).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			if r == nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	if proxyCfg.Global != "" {
		client.SetProxy(proxyCfg.Global)
	}

	client.SetHeader("Content-Type", "application/json; charset=utf-8")
	client.SetHeader("X-Device-Id", c.cred.DeviceID)
	client.SetHeader("User-Agent", utils.NormalizeAppUserAgent(c.cfg.UserAgent))
	if c.cfg.Origin != "" {
		client.SetHeader("Origin", c.cfg.Origin)
	}
	if c.cfg.Referer != "" {
		client.SetHeader("Referer", c.cfg.Referer)
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		c.bus.Log("debug", "http request", map[string]any{
			"account": c.cred.Account,
			"method":  req.Method,
			"url":     req.URL,
		})
		return nil
	})

	return client
}
