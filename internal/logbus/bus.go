package logbus

import (
	"sync"
	"time"
)

const (
	TypeLog     = "log"
	TypeAccount = "account"
)

type Message struct {
	Type string `json:"type"`
	Time int64  `json:"time"`
	Data any    `json:"data"`
}

type LogData struct {
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Fields map[string]any `json:"fields,omitempty"`
}

// AccountData reports a token lifecycle change of one account.
type AccountData struct {
	Account string `json:"account"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}

// Bus keeps the last messages in a ring for late subscribers and fans new ones out
// without blocking. A subscriber that falls behind misses messages instead of stalling
// the publisher.
type Bus struct {
	mu     sync.RWMutex
	ring   []Message
	head   int
	size   int
	subs   map[chan Message]struct{}
	closed bool
	now    func() time.Time
}

func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 200
	}
	return &Bus{
		ring: make([]Message, capacity),
		subs: make(map[chan Message]struct{}),
		now:  time.Now,
	}
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.ring, b.head, b.size = nil, 0, 0
}

// Snapshot returns the retained messages oldest first.
func (b *Bus) Snapshot() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Message, 0, b.size)
	start := b.head - b.size
	if start < 0 {
		start += len(b.ring)
	}
	for i := 0; i < b.size; i++ {
		out = append(out, b.ring[(start+i)%len(b.ring)])
	}
	return out
}

// Subscribe registers a channel for new messages. The returned func unsubscribes and
// may be called more than once.
func (b *Bus) Subscribe(buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Message, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

func (b *Bus) Publish(typ string, data any) {
	msg := Message{Type: typ, Time: b.now().UnixMilli(), Data: data}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.ring[b.head] = msg
	b.head = (b.head + 1) % len(b.ring)
	if b.size < len(b.ring) {
		b.size++
	}
	for ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Log is safe on a nil Bus so components can run without one in tests.
func (b *Bus) Log(level, message string, fields map[string]any) {
	if b == nil {
		return
	}
	b.Publish(TypeLog, LogData{Level: level, Msg: message, Fields: fields})
}

func (b *Bus) Account(account, state string, err error) {
	if b == nil {
		return
	}
	data := AccountData{Account: account, State: state}
	if err != nil {
		data.Error = err.Error()
	}
	b.Publish(TypeAccount, data)
}
