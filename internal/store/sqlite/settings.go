package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"referral_dashboard/internal/model"
)

const (
	emailSettingsKey  = "email_settings"
	payoutSettingsKey = "payout_settings"
)

func (s *Store) GetEmailSettings(ctx context.Context) (model.EmailSettings, bool, error) {
	var out model.EmailSettings
	ok, err := s.getSetting(ctx, emailSettingsKey, &out)
	if err != nil || !ok {
		return model.EmailSettings{}, ok, err
	}
	out.Email = strings.TrimSpace(out.Email)
	return out, true, nil
}

func (s *Store) UpsertEmailSettings(ctx context.Context, v model.EmailSettings) (model.EmailSettings, error) {
	if err := s.putSetting(ctx, emailSettingsKey, v); err != nil {
		return model.EmailSettings{}, err
	}
	return v, nil
}

func (s *Store) GetPayoutSettings(ctx context.Context) (model.PayoutSettings, bool, error) {
	var out model.PayoutSettings
	ok, err := s.getSetting(ctx, payoutSettingsKey, &out)
	if err != nil || !ok {
		return model.PayoutSettings{}, ok, err
	}
	return out, true, nil
}

func (s *Store) UpsertPayoutSettings(ctx context.Context, v model.PayoutSettings) (model.PayoutSettings, error) {
	if !v.Threshold.IsPositive() {
		return model.PayoutSettings{}, errors.New("threshold must be > 0")
	}
	if v.SettlementLagDays < 0 {
		return model.PayoutSettings{}, errors.New("settlementLagDays must be >= 0")
	}
	if err := s.putSetting(ctx, payoutSettingsKey, v); err != nil {
		return model.PayoutSettings{}, err
	}
	return v, nil
}

func (s *Store) getSetting(ctx context.Context, key string, out any) (bool, error) {
	var valueJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT value_json FROM settings WHERE key = ?
	`, key).Scan(&valueJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(valueJSON), out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) putSetting(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`, key, string(b), time.Now().UnixMilli())
	return err
}
