package model

import "time"

// Credential is the login material of one upstream account.
// An empty Password means the account can only be restored from a token.
type Credential struct {
	Account  string `json:"account"`
	Password string `json:"-"`
	DeviceID string `json:"deviceId"`
}

// Token is issued by login or refresh and never mutated afterwards.
type Token struct {
	Subject      string `json:"sub"`
	Account      string `json:"account"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
	ExpiresAt    int64  `json:"expiresAt"`
}

func (t Token) Expired(now time.Time) bool {
	return t.ExpiresAt > 0 && now.Unix() >= t.ExpiresAt
}

// AccountToken is one persisted registry entry.
type AccountToken struct {
	Account string `json:"account"`
	Token   Token  `json:"token"`
}

type AccountState struct {
	Account       string `json:"account"`
	Subject       string `json:"sub,omitempty"`
	Authenticated bool   `json:"authenticated"`
	NeedsRelogin  bool   `json:"needsRelogin,omitempty"`
	Selected      bool   `json:"selected"`
	ExpiresAt     int64  `json:"expiresAt,omitempty"`
	LastError     string `json:"lastError,omitempty"`
}

type UserProvider struct {
	ID             string `json:"id"`
	ProviderUserID string `json:"provider_user_id"`
	Name           string `json:"name"`
}

type UserInfo struct {
	Subject           string         `json:"sub"`
	Name              string         `json:"name,omitempty"`
	Picture           string         `json:"picture,omitempty"`
	Email             string         `json:"email,omitempty"`
	PhoneNumber       string         `json:"phone_number,omitempty"`
	Providers         []UserProvider `json:"providers,omitempty"`
	Password          string         `json:"password,omitempty"`
	Status            string         `json:"status,omitempty"`
	CreatedAt         string         `json:"created_at,omitempty"`
	PasswordUpdatedAt string         `json:"password_updated_at,omitempty"`
}
