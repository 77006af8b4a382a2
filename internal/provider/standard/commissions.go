package standard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"referral_dashboard/internal/model"
)

func (c *AuthClient) GetUserInfo(ctx context.Context) (model.UserInfo, error) {
	var out model.UserInfo
	if err := c.getInto(ctx, HostUser, "/v1/user/me", nil, &out); err != nil {
		return model.UserInfo{}, err
	}
	return out, nil
}

func (c *AuthClient) GetCommissionsSummary(ctx context.Context) (model.RevenueSummary, error) {
	var out model.RevenueSummary
	if err := c.getInto(ctx, HostAPI, "/promoting/v1/commissions/summary", nil, &out); err != nil {
		return model.RevenueSummary{}, err
	}
	return out, nil
}

func (c *AuthClient) GetInvitedRewardSummary(ctx context.Context) (model.InvitedRewardSummary, error) {
	var out model.InvitedRewardSummary
	if err := c.getInto(ctx, HostAPI, "/promoting/v1/invited-reward/summary", nil, &out); err != nil {
		return model.InvitedRewardSummary{}, err
	}
	return out, nil
}

// GetCommissionsDaily returns the configured commission mode's series for [from, to].
// A response without that mode is an empty series.
func (c *AuthClient) GetCommissionsDaily(ctx context.Context, from, to string) ([]model.DailyRecord, error) {
	params := map[string]string{"from": from, "to": to}
	if tok := c.Token(); tok != nil && tok.Subject != "" {
		params["user_id"] = tok.Subject
	}

	var byMode map[string]json.RawMessage
	if err := c.getInto(ctx, HostAPI, "/promoting/v1/commissions/daily", params, &byMode); err != nil {
		return nil, err
	}
	raw, ok := byMode[c.cfg.CommissionMode]
	if !ok || isNull(raw) {
		return []model.DailyRecord{}, nil
	}
	var out []model.DailyRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode daily %s: %w", c.cfg.CommissionMode, err)
	}
	return out, nil
}

func (c *AuthClient) GetRedemptions(ctx context.Context) ([]model.Redemption, error) {
	var raw json.RawMessage
	if err := c.getInto(ctx, HostAPI, "/promoting/v1/redemptions", nil, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return []model.Redemption{}, nil
	}
	if raw[0] != '[' {
		var wrapped struct {
			Redemptions json.RawMessage `json:"redemptions"`
			List        json.RawMessage `json:"list"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("decode redemptions: %w", err)
		}
		raw = wrapped.Redemptions
		if isNull(raw) {
			raw = wrapped.List
		}
		if isNull(raw) {
			return []model.Redemption{}, nil
		}
	}
	var out []model.Redemption
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode redemptions: %w", err)
	}
	return out, nil
}

func (c *AuthClient) getInto(ctx context.Context, host Host, path string, params map[string]string, out any) error {
	raw, err := c.Request(ctx, host, http.MethodGet, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(unwrapData(raw), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// unwrapData strips an optional {"data": ...} envelope.
func unwrapData(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil || isNull(env.Data) {
		return trimmed
	}
	return env.Data
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
