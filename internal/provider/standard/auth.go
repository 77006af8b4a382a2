package standard

import (
	"context"
	"errors"

	"referral_dashboard/internal/model"
	"referral_dashboard/internal/provider"
)

const refreshFlightKey = "refresh"

type captchaInitReq struct {
	ClientID string            `json:"client_id"`
	DeviceID string            `json:"device_id"`
	Action   string            `json:"action"`
	Meta     map[string]string `json:"meta"`
}

type captchaInitResp struct {
	CaptchaToken string `json:"captcha_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type signinReq struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

type refreshReq struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
}

type tokenResp struct {
	TokenType    string `json:"token_type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Sub          string `json:"sub"`
}

// Login exchanges the configured password for a token bundle.
func (c *AuthClient) Login(ctx context.Context) (model.Token, error) {
	if c.cred.Password == "" {
		return model.Token{}, &provider.AuthError{Account: c.cred.Account, Op: "login", Err: provider.ErrMissingPassword}
	}

	captcha, err := c.captchaToken(ctx)
	if err != nil {
		return model.Token{}, err
	}

	var resp tokenResp
	err = c.post(ctx, "/v1/auth/signin", signinReq{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		GrantType:    "password",
		Username:     c.cred.Account,
		Password:     c.cred.Password,
		CaptchaToken: captcha,
	}, &resp)
	if err != nil {
		return model.Token{}, err
	}
	if resp.AccessToken == "" {
		return model.Token{}, &provider.AuthError{Account: c.cred.Account, Op: "login", Err: errors.New("empty access token")}
	}

	tok := c.tokenFrom(resp, nil)
	c.setToken(&tok)
	c.bus.Log("info", "account signed in", map[string]any{"account": c.cred.Account})
	c.emit(provider.TokenIssued, &tok, nil)
	return tok, nil
}

func (c *AuthClient) captchaToken(ctx context.Context) (string, error) {
	var resp captchaInitResp
	err := c.post(ctx, "/v1/shield/captcha/init", captchaInitReq{
		ClientID: c.cfg.ClientID,
		DeviceID: c.cred.DeviceID,
		Action:   c.cfg.CaptchaAction,
		Meta:     map[string]string{"username": c.cred.Account},
	}, &resp)
	if err != nil {
		return "", &provider.AuthError{Account: c.cred.Account, Op: "captcha", Err: err}
	}
	if resp.CaptchaToken == "" {
		return "", &provider.AuthError{Account: c.cred.Account, Op: "captcha", Err: provider.ErrEmptyCaptcha}
	}
	return resp.CaptchaToken, nil
}

// RefreshToken exchanges the refresh token for a new bundle and returns the new access
// token. Concurrent callers share one upstream call and observe the same outcome.
func (c *AuthClient) RefreshToken(ctx context.Context) (string, error) {
	return c.refresh(ctx, "")
}

// refresh joins or starts the in-flight refresh. A non-empty stale access token that is no
// longer current means someone else already refreshed, so no call is made.
func (c *AuthClient) refresh(ctx context.Context, stale string) (string, error) {
	if stale != "" {
		if cur := c.Token(); cur != nil && cur.AccessToken != stale {
			return cur.AccessToken, nil
		}
	}

	ch := c.flight.DoChan(refreshFlightKey, func() (any, error) {
		// detached so one caller giving up does not fail the others
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout())
		defer cancel()
		return c.doRefresh(rctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *AuthClient) doRefresh(ctx context.Context) (string, error) {
	cur := c.Token()
	if cur == nil || cur.RefreshToken == "" {
		return "", &provider.AuthError{Account: c.cred.Account, Op: "refresh", Err: provider.ErrNotLoggedIn}
	}

	var resp tokenResp
	err := c.post(ctx, "/v1/auth/token", refreshReq{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		GrantType:    "refresh_token",
		RefreshToken: cur.RefreshToken,
	}, &resp)
	if err == nil && resp.AccessToken == "" {
		err = &provider.AuthError{Account: c.cred.Account, Op: "refresh", Err: errors.New("empty access token")}
	}
	if err != nil {
		c.setToken(nil)
		c.bus.Log("warn", "token refresh failed, account needs re-login", map[string]any{
			"account": c.cred.Account,
			"error":   err.Error(),
		})
		c.emit(provider.TokenCleared, nil, err)
		return "", err
	}

	next := c.tokenFrom(resp, cur)
	c.setToken(&next)
	c.bus.Log("info", "token refreshed", map[string]any{"account": c.cred.Account, "expiresAt": next.ExpiresAt})
	c.emit(provider.TokenRefreshed, &next, nil)
	return next.AccessToken, nil
}

func (c *AuthClient) tokenFrom(resp tokenResp, prev *model.Token) model.Token {
	tok := model.Token{
		Subject:      resp.Sub,
		Account:      c.cred.Account,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		DeviceID:     c.cred.DeviceID,
	}
	if resp.ExpiresIn > 0 {
		tok.ExpiresAt = c.now().Unix() + resp.ExpiresIn
	}
	if prev != nil {
		if tok.Subject == "" {
			tok.Subject = prev.Subject
		}
		if tok.RefreshToken == "" {
			tok.RefreshToken = prev.RefreshToken
		}
	}
	return tok
}
