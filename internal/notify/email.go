package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"referral_dashboard/internal/logbus"
	"referral_dashboard/internal/model"
)

const (
	senderName = "Referral Dashboard"
	timeLayout = "2006-01-02 15:04:05"
)

type SettingsStore interface {
	GetEmailSettings(ctx context.Context) (model.EmailSettings, bool, error)
}

type sendFunc func(ctx context.Context, settings model.EmailSettings, events []ReloginRequiredEvent) error

// EmailNotifier collects relogin events and mails one summary per quiet window.
// The window restarts on every event; a batch is also sent once it holds maxBatch events.
type EmailNotifier struct {
	store SettingsStore
	bus   *logbus.Bus
	send  sendFunc

	queue chan ReloginRequiredEvent
	stop  context.CancelFunc
	ctx   context.Context
	once  sync.Once
	done  chan struct{}

	summaryWindow time.Duration
	maxBatch      int
}

func NewEmailNotifier(store SettingsStore, bus *logbus.Bus, summaryWindow time.Duration) *EmailNotifier {
	ctx, stop := context.WithCancel(context.Background())
	n := &EmailNotifier{
		store:         store,
		bus:           bus,
		send:          SendReloginSummaryEmail,
		queue:         make(chan ReloginRequiredEvent, 200),
		ctx:           ctx,
		stop:          stop,
		done:          make(chan struct{}),
		summaryWindow: summaryWindow,
		maxBatch:      50,
	}
	go n.run()
	return n
}

// Close sends whatever is pending and waits for the loop to exit or ctx to end.
func (n *EmailNotifier) Close(ctx context.Context) error {
	n.once.Do(n.stop)
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) NotifyReloginRequired(_ context.Context, evt ReloginRequiredEvent) {
	select {
	case n.queue <- evt:
	default:
		n.bus.Log("warn", "relogin email dropped: queue full", map[string]any{"account": evt.Account})
	}
}

type pendingBatch struct {
	events []ReloginRequiredEvent
	timer  *time.Timer
}

func (p *pendingBatch) expired() <-chan time.Time {
	if p.timer == nil {
		return nil
	}
	return p.timer.C
}

func (p *pendingBatch) arm(window time.Duration) {
	if p.timer == nil {
		p.timer = time.NewTimer(window)
		return
	}
	p.timer.Reset(window)
}

func (p *pendingBatch) take() []ReloginRequiredEvent {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if len(p.events) == 0 {
		return nil
	}
	out := dedupeByAccount(p.events)
	p.events = p.events[:0]
	return out
}

func (n *EmailNotifier) run() {
	defer close(n.done)
	var batch pendingBatch
	for {
		select {
		case <-n.ctx.Done():
			n.deliver("shutdown", batch.take())
			return
		case evt := <-n.queue:
			batch.events = append(batch.events, evt)
			switch {
			case n.maxBatch > 0 && len(batch.events) >= n.maxBatch:
				n.deliver("max", batch.take())
			case n.summaryWindow <= 0:
				n.deliver("immediate", batch.take())
			default:
				batch.arm(n.summaryWindow)
			}
		case <-batch.expired():
			n.deliver("idle", batch.take())
		}
	}
}

// dedupeByAccount keeps the latest event per account in first-seen order.
func dedupeByAccount(events []ReloginRequiredEvent) []ReloginRequiredEvent {
	idx := make(map[string]int, len(events))
	out := make([]ReloginRequiredEvent, 0, len(events))
	for _, evt := range events {
		if i, ok := idx[evt.Account]; ok {
			out[i] = evt
			continue
		}
		idx[evt.Account] = len(out)
		out = append(out, evt)
	}
	return out
}

func (n *EmailNotifier) deliver(reason string, events []ReloginRequiredEvent) {
	if len(events) == 0 || n.store == nil {
		return
	}
	// n.ctx is already cancelled for the shutdown batch
	ctx, cancel := context.WithTimeout(context.WithoutCancel(n.ctx), 30*time.Second)
	defer cancel()

	fields := map[string]any{"count": len(events), "reason": reason}
	settings, ok, err := n.store.GetEmailSettings(ctx)
	switch {
	case err != nil:
		fields["error"] = err.Error()
		n.bus.Log("warn", "load email settings failed", fields)
		return
	case !ok || !settings.Enabled:
		n.bus.Log("info", "email notification disabled", fields)
		return
	}
	if err := ValidateEmailSettings(settings); err != nil {
		fields["error"] = err.Error()
		n.bus.Log("warn", "invalid email settings", fields)
		return
	}
	if err := n.send(ctx, settings, events); err != nil {
		fields["error"] = err.Error()
		n.bus.Log("warn", "send email failed", fields)
		return
	}
	fields["to"] = strings.TrimSpace(settings.Email)
	n.bus.Log("info", "notification email sent", fields)
}
