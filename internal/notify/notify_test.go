package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"momentum-trader/internal/stream"
)

type recordingChannel struct {
	sent []Notification
	err  error
}

func (r *recordingChannel) Name() string { return "recording" }

func (r *recordingChannel) Send(ctx context.Context, n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":             LevelAll,
		"all":          LevelAll,
		"TRADES_ONLY":  LevelTradesOnly,
		" errors_only": LevelErrorsOnly,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNotifier_LevelFilter(t *testing.T) {
	tests := []struct {
		level Level
		want  []Type
	}{
		{LevelAll, []Type{TypeTrade, TypeError, TypeInfo}},
		{LevelTradesOnly, []Type{TypeTrade}},
		{LevelErrorsOnly, []Type{TypeError}},
	}
	for _, tt := range tests {
		ch := &recordingChannel{}
		n := New(Options{Level: tt.level}, zerolog.Nop())
		n.AddChannel(ch)
		for _, typ := range []Type{TypeTrade, TypeError, TypeInfo} {
			if err := n.Send(context.Background(), Notification{Type: typ, Title: string(typ)}); err != nil {
				t.Fatalf("Send failed: %v", err)
			}
		}
		if len(ch.sent) != len(tt.want) {
			t.Fatalf("level %s: expected %d notifications, got %d", tt.level, len(tt.want), len(ch.sent))
		}
		for i, typ := range tt.want {
			if ch.sent[i].Type != typ {
				t.Errorf("level %s: notification %d is %s, want %s", tt.level, i, ch.sent[i].Type, typ)
			}
			if ch.sent[i].Timestamp.IsZero() {
				t.Error("Send should stamp notifications")
			}
		}
	}
}

func TestNotifier_ChannelFailureDoesNotStopOthers(t *testing.T) {
	failing := &recordingChannel{err: errors.New("down")}
	ok := &recordingChannel{}
	n := New(Options{}, zerolog.Nop())
	n.AddChannel(failing)
	n.AddChannel(ok)

	err := n.Send(context.Background(), Notification{Type: TypeTrade, Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "recording: down") {
		t.Errorf("expected aggregated error, got %v", err)
	}
	if len(ok.sent) != 1 {
		t.Error("healthy channel should still receive the notification")
	}
}

func TestWebhookChannel(t *testing.T) {
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := New(Options{WebhookURL: server.URL}, zerolog.Nop())
	if !n.Enabled() {
		t.Fatal("webhook URL should enable the notifier")
	}
	err := n.Send(context.Background(), Notification{
		Type:    TypeTrade,
		Title:   "Trade Closed: INFY",
		Message: "Target Hit",
		Data:    map[string]interface{}{"tradeId": "t1"},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if payload["title"] != "Trade Closed: INFY" || payload["type"] != "trade" {
		t.Errorf("unexpected payload: %v", payload)
	}
	data, _ := payload["data"].(map[string]interface{})
	if data["tradeId"] != "t1" {
		t.Errorf("payload data missing trade id: %v", payload["data"])
	}
}

func TestWebhookChannel_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ch := NewWebhookChannel(server.URL)
	if err := ch.Send(context.Background(), Notification{Title: "x"}); err == nil {
		t.Error("expected error for a 500 response")
	}
}

func TestTerminalChannel_Bell(t *testing.T) {
	var buf bytes.Buffer
	ch := NewTerminalChannel(&buf, true)
	ts := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

	_ = ch.Send(context.Background(), Notification{Type: TypeTrade, Title: "Trade Closed: TCS", Message: "Stop Loss Hit", Timestamp: ts})
	_ = ch.Send(context.Background(), Notification{Type: TypeInfo, Title: "Prices Refreshed", Timestamp: ts})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if lines[0] != "\a[09:30:00] Trade Closed: TCS: Stop Loss Hit" {
		t.Errorf("unexpected trade line: %q", lines[0])
	}
	if lines[1] != "[09:30:00] Prices Refreshed" {
		t.Errorf("unexpected info line: %q", lines[1])
	}
}

func TestFromEvent(t *testing.T) {
	n, ok := FromEvent(stream.LedgerEvent{Type: stream.EventTradeClosed, TradeID: "t1", Symbol: "INFY", Reason: "Target Hit", Version: 3})
	if !ok || n.Type != TypeTrade || n.Title != "Trade Closed: INFY" || n.Message != "Target Hit" {
		t.Errorf("unexpected notification: %+v", n)
	}
	if n.Data["tradeId"] != "t1" {
		t.Errorf("missing trade id: %v", n.Data)
	}

	n, ok = FromEvent(stream.LedgerEvent{Type: stream.EventPricesRefreshed, Count: 4})
	if !ok || n.Type != TypeInfo || n.Message != "4 trades updated" {
		t.Errorf("unexpected refresh notification: %+v", n)
	}

	if _, ok := FromEvent(stream.LedgerEvent{Type: stream.EventTradeCreated}); ok {
		t.Error("created events should not notify")
	}
}

func TestNotifier_Drain(t *testing.T) {
	hub := stream.NewHub()
	defer hub.Close()
	events := hub.Subscribe()

	hub.Publish(stream.LedgerEvent{Type: stream.EventTradeCreated, TradeID: "t1"})
	hub.Publish(stream.LedgerEvent{Type: stream.EventTradeClosed, TradeID: "t1", Symbol: "INFY", Reason: "Target Hit"})
	hub.Publish(stream.LedgerEvent{Type: stream.EventPricesRefreshed, Count: 1})

	ch := &recordingChannel{}
	n := New(Options{Level: LevelTradesOnly}, zerolog.Nop())
	n.AddChannel(ch)

	// Filtered notifications still count as handled.
	if sent := n.Drain(context.Background(), events); sent != 2 {
		t.Errorf("expected 2 convertible events, got %d", sent)
	}
	if len(ch.sent) != 1 || ch.sent[0].Type != TypeTrade {
		t.Errorf("expected only the trade notification, got %+v", ch.sent)
	}
	if sent := n.Drain(context.Background(), events); sent != 0 {
		t.Errorf("second drain should find nothing, got %d", sent)
	}
}

func TestProperty_FormatLineCarriesTitleAndMessage(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("line contains title and message", prop.ForAll(
		func(title, message string) bool {
			line := FormatLine(Notification{Title: title, Message: message, Timestamp: time.Unix(0, 0).UTC()})
			if !strings.HasPrefix(line, "[00:00:00] ") || !strings.Contains(line, title) {
				return false
			}
			return message == "" || strings.HasSuffix(line, ": "+message)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
