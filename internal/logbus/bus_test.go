package logbus

import (
	"errors"
	"testing"
)

func TestSnapshotKeepsLastMessages(t *testing.T) {
	b := New(2)
	b.Log("info", "one", nil)
	b.Log("info", "two", nil)
	b.Log("info", "three", nil)

	snap := b.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len = %d", len(snap))
	}
	if got := snap[0].Data.(LogData).Msg; got != "two" {
		t.Fatalf("oldest = %q", got)
	}
	if got := snap[1].Data.(LogData).Msg; got != "three" {
		t.Fatalf("newest = %q", got)
	}
}

func TestSubscribeReceivesAccountEvents(t *testing.T) {
	b := New(10)
	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Account("a@example.com", "needs_relogin", errors.New("refresh rejected"))

	msg := <-ch
	if msg.Type != TypeAccount {
		t.Fatalf("type = %q", msg.Type)
	}
	data := msg.Data.(AccountData)
	if data.Account != "a@example.com" || data.State != "needs_relogin" || data.Error != "refresh rejected" {
		t.Fatalf("data = %+v", data)
	}
}

func TestNilBusIsNoop(t *testing.T) {
	var b *Bus
	b.Log("info", "ignored", nil)
	b.Account("x", "y", nil)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	b := New(10)
	ch, _ := b.Subscribe(1)
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	b.Log("info", "after close", nil)
	if len(b.Snapshot()) != 0 {
		t.Fatalf("closed bus should drop messages")
	}
}

func TestSnapshotAfterWrapIsOldestFirst(t *testing.T) {
	b := New(3)
	for _, m := range []string{"1", "2", "3", "4", "5"} {
		b.Log("info", m, nil)
	}
	var got []string
	for _, msg := range b.Snapshot() {
		got = append(got, msg.Data.(LogData).Msg)
	}
	if len(got) != 3 || got[0] != "3" || got[2] != "5" {
		t.Fatalf("snapshot = %v", got)
	}
}

func TestCancelTwiceIsSafe(t *testing.T) {
	b := New(4)
	_, cancel := b.Subscribe(1)
	cancel()
	cancel()
	b.Log("info", "still publishing", nil)
}

func TestFilter(t *testing.T) {
	logAt := func(level string) Message { return Message{Type: TypeLog, Data: LogData{Level: level}} }
	account := Message{Type: TypeAccount, Data: AccountData{Account: "a"}}

	cases := []struct {
		name   string
		filter Filter
		msg    Message
		want   bool
	}{
		{"zero value matches debug", Filter{}, logAt("debug"), true},
		{"default drops debug", ParseFilter("", ""), logAt("debug"), false},
		{"default keeps info", ParseFilter("", ""), logAt("info"), true},
		{"warn drops info", ParseFilter("", "WARN"), logAt("info"), false},
		{"warn keeps error", ParseFilter("", "warn"), logAt("error"), true},
		{"unknown level falls back to info", ParseFilter("", "loud"), logAt("debug"), false},
		{"type list excludes log", ParseFilter("account", ""), logAt("error"), false},
		{"type list includes account", ParseFilter(" account , ", "error"), account, true},
	}
	for _, tc := range cases {
		if got := tc.filter.Match(tc.msg); got != tc.want {
			t.Errorf("%s: Match = %v, want %v", tc.name, got, tc.want)
		}
	}
}
