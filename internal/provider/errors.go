package provider

import (
	"errors"
	"fmt"
)

var (
	ErrMissingPassword = errors.New("no password configured")
	ErrNotLoggedIn     = errors.New("account is not logged in")
	ErrEmptyCaptcha    = errors.New("captcha token is empty")
)

// AuthError reports a credential problem detected before or during sign-in.
type AuthError struct {
	Account string
	Op      string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Account, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RemoteError is a non-2xx upstream response. Body is the raw response body.
type RemoteError struct {
	Op      string
	Status  int
	Code    string
	Message string
	Body    string
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	if len(msg) > 256 {
		msg = msg[:256] + "..."
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: http %d (%s): %s", e.Op, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.Status, msg)
}

// TokenExpiredError drives the refresh-and-retry path of an authenticated request.
// It never leaves the client; callers see Remote instead.
type TokenExpiredError struct {
	Remote *RemoteError
}

func (e *TokenExpiredError) Error() string { return "token expired: " + e.Remote.Error() }

func (e *TokenExpiredError) Unwrap() error { return e.Remote }

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}
