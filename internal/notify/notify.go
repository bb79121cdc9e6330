// Package notify delivers ledger alerts to the terminal and to webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"momentum-trader/internal/stream"
)

// Type classifies a notification.
type Type string

const (
	TypeTrade Type = "trade"
	TypeError Type = "error"
	TypeInfo  Type = "info"
)

// Level filters which notification types are delivered.
type Level string

const (
	LevelAll        Level = "all"
	LevelTradesOnly Level = "trades_only"
	LevelErrorsOnly Level = "errors_only"
)

// ParseLevel parses a level name. An empty name selects LevelAll.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case "", LevelAll:
		return LevelAll, nil
	case LevelTradesOnly:
		return LevelTradesOnly, nil
	case LevelErrorsOnly:
		return LevelErrorsOnly, nil
	default:
		return "", fmt.Errorf("unknown notification level %q (must be all, trades_only or errors_only)", s)
	}
}

// Notification is one alert message.
type Notification struct {
	Type      Type
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// Channel is a single delivery target.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Options configures a Notifier. Zero values disable the matching channel.
type Options struct {
	Level      Level
	WebhookURL string
	// Terminal receives one line per notification when set.
	Terminal io.Writer
	// Bell rings the terminal bell for trade notifications.
	Bell bool
}

// Notifier fans notifications out to its channels.
type Notifier struct {
	channels []Channel
	level    Level
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// New creates a Notifier with the channels enabled in opts.
func New(opts Options, logger zerolog.Logger) *Notifier {
	n := &Notifier{
		level:  opts.Level,
		logger: logger.With().Str("component", "notify").Logger(),
	}
	if n.level == "" {
		n.level = LevelAll
	}
	if opts.Terminal != nil {
		n.channels = append(n.channels, NewTerminalChannel(opts.Terminal, opts.Bell))
	}
	if opts.WebhookURL != "" {
		n.channels = append(n.channels, NewWebhookChannel(opts.WebhookURL))
	}
	return n
}

// AddChannel adds a delivery target.
func (n *Notifier) AddChannel(ch Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels = append(n.channels, ch)
}

// Enabled reports whether any channel is configured.
func (n *Notifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.channels) > 0
}

func (n *Notifier) shouldSend(t Type) bool {
	switch n.level {
	case LevelTradesOnly:
		return t == TypeTrade
	case LevelErrorsOnly:
		return t == TypeError
	default:
		return true
	}
}

// Send delivers a notification to every channel. A failing channel does not
// stop delivery to the others; all failures are reported together.
func (n *Notifier) Send(ctx context.Context, notif Notification) error {
	if !n.shouldSend(notif.Type) {
		return nil
	}
	if notif.Timestamp.IsZero() {
		notif.Timestamp = time.Now()
	}

	n.mu.RLock()
	channels := n.channels
	n.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if err := ch.Send(ctx, notif); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendError sends an error notification.
func (n *Notifier) SendError(ctx context.Context, err error, errContext string) error {
	return n.Send(ctx, Notification{
		Type:    TypeError,
		Title:   "Error: " + errContext,
		Message: err.Error(),
	})
}

// FromEvent converts a ledger event into a notification. Only closed trades
// and completed refreshes produce one.
func FromEvent(ev stream.LedgerEvent) (Notification, bool) {
	data := map[string]interface{}{"version": ev.Version}
	switch ev.Type {
	case stream.EventTradeClosed:
		data["tradeId"] = ev.TradeID
		data["symbol"] = ev.Symbol
		data["reason"] = ev.Reason
		return Notification{
			Type:      TypeTrade,
			Title:     "Trade Closed: " + ev.Symbol,
			Message:   ev.Reason,
			Data:      data,
			Timestamp: ev.Timestamp,
		}, true
	case stream.EventPricesRefreshed:
		data["trades"] = ev.Count
		return Notification{
			Type:      TypeInfo,
			Title:     "Prices Refreshed",
			Message:   fmt.Sprintf("%d trades updated", ev.Count),
			Data:      data,
			Timestamp: ev.Timestamp,
		}, true
	default:
		return Notification{}, false
	}
}

// Drain sends a notification for every event already buffered on events and
// returns without waiting for more. It returns the number of events handled
// without error; delivery failures are logged.
func (n *Notifier) Drain(ctx context.Context, events <-chan stream.LedgerEvent) int {
	sent := 0
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return sent
			}
			notif, ok := FromEvent(ev)
			if !ok {
				continue
			}
			if err := n.Send(ctx, notif); err != nil {
				n.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("Notification failed")
				continue
			}
			sent++
		default:
			return sent
		}
	}
}

// WebhookChannel posts notifications as JSON.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates a webhook channel for url.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the channel name.
func (w *WebhookChannel) Name() string {
	return "webhook"
}

// Send posts the notification.
func (w *WebhookChannel) Send(ctx context.Context, n Notification) error {
	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "MomentumTrader/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// TerminalChannel writes one line per notification.
type TerminalChannel struct {
	w    io.Writer
	bell bool
	mu   sync.Mutex
}

// NewTerminalChannel creates a terminal channel writing to w.
func NewTerminalChannel(w io.Writer, bell bool) *TerminalChannel {
	return &TerminalChannel{w: w, bell: bell}
}

// Name returns the channel name.
func (t *TerminalChannel) Name() string {
	return "terminal"
}

// Send writes the formatted notification.
func (t *TerminalChannel) Send(ctx context.Context, n Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	line := FormatLine(n)
	if t.bell && n.Type == TypeTrade {
		line = "\a" + line
	}
	_, err := fmt.Fprintln(t.w, line)
	return err
}

// FormatLine renders a notification as "[15:04:05] Title: message".
func FormatLine(n Notification) string {
	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if n.Message == "" {
		return fmt.Sprintf("[%s] %s", ts.Format("15:04:05"), n.Title)
	}
	return fmt.Sprintf("[%s] %s: %s", ts.Format("15:04:05"), n.Title, n.Message)
}
