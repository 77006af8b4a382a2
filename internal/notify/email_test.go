package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"referral_dashboard/internal/logbus"
	"referral_dashboard/internal/model"
)

type staticSettings struct {
	settings model.EmailSettings
	ok       bool
}

func (s staticSettings) GetEmailSettings(context.Context) (model.EmailSettings, bool, error) {
	return s.settings, s.ok, nil
}

type capture struct {
	mu      sync.Mutex
	batches [][]ReloginRequiredEvent
	sent    chan struct{}
}

func (c *capture) send(_ context.Context, _ model.EmailSettings, events []ReloginRequiredEvent) error {
	c.mu.Lock()
	c.batches = append(c.batches, events)
	c.mu.Unlock()
	c.sent <- struct{}{}
	return nil
}

func newTestNotifier(t *testing.T, store SettingsStore, window time.Duration) (*EmailNotifier, *capture) {
	t.Helper()
	c := &capture{sent: make(chan struct{}, 4)}
	n := NewEmailNotifier(store, logbus.New(20), window)
	n.send = c.send
	t.Cleanup(func() { _ = n.Close(context.Background()) })
	return n, c
}

var enabled = staticSettings{ok: true, settings: model.EmailSettings{Enabled: true, Email: "me@example.com", AuthCode: "secret"}}

func TestBatchesWithinSummaryWindow(t *testing.T) {
	n, c := newTestNotifier(t, enabled, 50*time.Millisecond)
	ctx := context.Background()
	n.NotifyReloginRequired(ctx, ReloginRequiredEvent{At: 1, Account: "a@x.com", Reason: "first"})
	n.NotifyReloginRequired(ctx, ReloginRequiredEvent{At: 2, Account: "b@x.com"})
	n.NotifyReloginRequired(ctx, ReloginRequiredEvent{At: 3, Account: "a@x.com", Reason: "second"})

	select {
	case <-c.sent:
	case <-time.After(2 * time.Second):
		t.Fatalf("no email sent")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.batches) != 1 || len(c.batches[0]) != 2 {
		t.Fatalf("batches = %+v", c.batches)
	}
	if got := c.batches[0][0]; got.Account != "a@x.com" || got.Reason != "second" {
		t.Fatalf("first row = %+v", got)
	}
}

func TestDisabledSettingsSendNothing(t *testing.T) {
	n, c := newTestNotifier(t, staticSettings{ok: true}, 0)
	n.NotifyReloginRequired(context.Background(), ReloginRequiredEvent{Account: "a@x.com"})
	select {
	case <-c.sent:
		t.Fatalf("email sent while disabled")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestValidateEmailSettings(t *testing.T) {
	tests := []struct {
		in      model.EmailSettings
		wantErr bool
	}{
		{in: model.EmailSettings{Email: "me@example.com", AuthCode: "x"}},
		{in: model.EmailSettings{AuthCode: "x"}, wantErr: true},
		{in: model.EmailSettings{Email: "not an address", AuthCode: "x"}, wantErr: true},
		{in: model.EmailSettings{Email: "me@example.com"}, wantErr: true},
	}
	for _, tt := range tests {
		if err := ValidateEmailSettings(tt.in); (err != nil) != tt.wantErr {
			t.Errorf("validate(%+v) = %v", tt.in, err)
		}
	}
}

func TestSMTPConfigForEmail(t *testing.T) {
	host, port, ssl, err := smtpConfigForEmail("me@mail.gmail.com")
	if err != nil || host != "smtp.gmail.com" || port != 587 || ssl {
		t.Fatalf("gmail = %s %d %v %v", host, port, ssl, err)
	}
	host, port, ssl, _ = smtpConfigForEmail("me@corp.example")
	if host != "smtp.corp.example" || port != 465 || !ssl {
		t.Fatalf("default = %s %d %v", host, port, ssl)
	}
	if _, _, _, err := smtpConfigForEmail("nobody"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSummaryBodyListsAccounts(t *testing.T) {
	html, text, err := buildSummaryEmailBody([]ReloginRequiredEvent{
		{At: 1700000000000, Account: "a@x.com", Reason: "refresh: http 400"},
		{At: 1700000060000, Account: "b@<x>.com"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(text, "a@x.com") || !strings.Contains(text, "refresh rejected") {
		t.Fatalf("text = %s", text)
	}
	if strings.Contains(html, "b@<x>.com") || !strings.Contains(html, "b@&lt;x&gt;.com") {
		t.Fatalf("html not escaped")
	}
	if got := buildSummarySubject([]ReloginRequiredEvent{{}, {}}); !strings.Contains(got, "2 accounts") {
		t.Fatalf("subject = %q", got)
	}
}
