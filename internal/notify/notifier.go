package notify

import "context"

// ReloginRequiredEvent is raised once per account whose refresh token was rejected.
type ReloginRequiredEvent struct {
	At      int64  `json:"atMs"`
	Account string `json:"account"`
	Reason  string `json:"reason,omitempty"`
}

type Notifier interface {
	NotifyReloginRequired(ctx context.Context, evt ReloginRequiredEvent)
}
