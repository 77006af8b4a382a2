package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"referral_dashboard/internal/model"
)

// LoadTokens returns the persisted entries in registry order.
func (s *Store) LoadTokens(ctx context.Context) ([]model.AccountToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account, subject, access_token, refresh_token, device_id, expires_at
		FROM account_tokens ORDER BY position ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AccountToken
	for rows.Next() {
		var t model.Token
		if err := rows.Scan(&t.Account, &t.Subject, &t.AccessToken, &t.RefreshToken, &t.DeviceID, &t.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, model.AccountToken{Account: t.Account, Token: t})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveTokens replaces the whole persisted set in one transaction.
func (s *Store) SaveTokens(ctx context.Context, entries []model.AccountToken) (err error) {
	for _, e := range entries {
		if e.Account == "" {
			return errors.New("account is required")
		}
		if e.Token.Account != "" && e.Token.Account != e.Account {
			return fmt.Errorf("token of %s stored under %s", e.Token.Account, e.Account)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM account_tokens`); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for i, e := range entries {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO account_tokens (account, subject, access_token, refresh_token, device_id, expires_at, position, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.Account, e.Token.Subject, e.Token.AccessToken, e.Token.RefreshToken, e.Token.DeviceID, e.Token.ExpiresAt, i, now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
