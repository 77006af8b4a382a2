package provider

import (
	"context"

	"referral_dashboard/internal/model"
)

// Reader is the read-only commission surface of one authenticated account.
type Reader interface {
	GetUserInfo(ctx context.Context) (model.UserInfo, error)
	GetCommissionsSummary(ctx context.Context) (model.RevenueSummary, error)
	GetInvitedRewardSummary(ctx context.Context) (model.InvitedRewardSummary, error)
	GetCommissionsDaily(ctx context.Context, from, to string) ([]model.DailyRecord, error)
	GetRedemptions(ctx context.Context) ([]model.Redemption, error)
}

// Client is one account's authenticated session with the upstream platform.
type Client interface {
	Reader

	Account() string
	// Token returns the current token, or nil when the account is not authenticated.
	Token() *model.Token
	Login(ctx context.Context) (model.Token, error)
	RefreshToken(ctx context.Context) (string, error)
}

type TokenEventKind string

const (
	TokenIssued    TokenEventKind = "issued"
	TokenRefreshed TokenEventKind = "refreshed"
	TokenCleared   TokenEventKind = "cleared"
)

// TokenEvent is emitted by a Client to its owner whenever its token changes.
type TokenEvent struct {
	Account string
	Kind    TokenEventKind
	// Token is nil for TokenCleared.
	Token *model.Token
	Err   error
}

type TokenObserver interface {
	OnTokenEvent(evt TokenEvent)
}

type ObserverFunc func(evt TokenEvent)

func (f ObserverFunc) OnTokenEvent(evt TokenEvent) { f(evt) }
