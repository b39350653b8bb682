package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tw-screener/internal/config"
	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/models"
	"tw-screener/pkg/utils"
)

func sampleSummary(matches int) *ScanSummary {
	all := []models.ScanResult{
		{Code: "2330", Name: "台積電", Close: 585, RevenueYoY: 31.98},
		{Code: "2317", Name: "鴻海", Close: 150.5, RevenueYoY: -3.2},
		{Code: "3008", Name: "大立光", Close: 2400, RevenueYoY: 12},
		{Code: "2454", Name: "聯發科", Close: 1000, RevenueYoY: 5},
	}
	top := all[:min(matches, SummaryTop)]
	return &ScanSummary{
		Strategy: "籌碼衝鋒 (集中度高)",
		Date:     time.Date(2024, 5, 3, 18, 30, 0, 0, utils.TaipeiLocation),
		Scanned:  1800,
		Matches:  matches,
		Top:      top,
	}
}

// recordingChannel captures notifications.
type recordingChannel struct {
	name string
	sent []Notification
	err  error
}

func (r *recordingChannel) Name() string    { return r.name }
func (r *recordingChannel) IsEnabled() bool { return true }
func (r *recordingChannel) Send(ctx context.Context, n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func TestFormatScanSummary(t *testing.T) {
	title, body := FormatScanSummary(sampleSummary(4))

	if title != "🔥 選股戰報 (05/03)" {
		t.Errorf("title = %q", title)
	}
	want := strings.Join([]string{
		"策略：籌碼衝鋒 (集中度高)",
		"發現：4 檔",
		"• 台積電(2330): 585元 / YoY 31.98%",
		"• 鴻海(2317): 150.5元 / YoY -3.2%",
		"• 大立光(3008): 2400元 / YoY 12%",
	}, "\n")
	if body != want {
		t.Errorf("body =\n%s\nwant\n%s", body, want)
	}

	_, empty := FormatScanSummary(sampleSummary(0))
	if !strings.Contains(empty, "今日無目標") {
		t.Errorf("empty summary = %q", empty)
	}
}

func TestLevelFilter(t *testing.T) {
	tests := []struct {
		level     NotificationLevel
		matches   int
		wantSends int
	}{
		{LevelAll, 0, 2},
		{LevelAll, 2, 2},
		{LevelMatchesOnly, 2, 1},
		{LevelMatchesOnly, 0, 0},
		{LevelErrorsOnly, 2, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			mn := NewMultiNotifier(&config.NotificationConfig{Level: string(tt.level)}, zerolog.Nop())
			ch := &recordingChannel{name: "rec"}
			mn.AddChannel(ch)

			ctx := context.Background()
			if err := mn.SendScanSummary(ctx, sampleSummary(tt.matches)); err != nil {
				t.Fatal(err)
			}
			if err := mn.SendError(ctx, errors.New("boom"), "scan"); err != nil {
				t.Fatal(err)
			}
			if len(ch.sent) != tt.wantSends {
				t.Errorf("sent %d, want %d", len(ch.sent), tt.wantSends)
			}
		})
	}
}

func TestSendAggregatesChannelErrors(t *testing.T) {
	mn := NewMultiNotifier(&config.NotificationConfig{}, zerolog.Nop())
	bad := &recordingChannel{name: "bad", err: errors.New("down")}
	good := &recordingChannel{name: "good"}
	mn.AddChannel(bad)
	mn.AddChannel(good)

	err := mn.Send(context.Background(), Notification{Type: NotificationInfo, Title: "hi"})
	if !errors.Is(err, apperrors.ErrNotifyFailed) {
		t.Fatalf("err = %v, want ErrNotifyFailed", err)
	}
	if !strings.Contains(err.Error(), "bad: down") {
		t.Errorf("err = %v", err)
	}
	if len(good.sent) != 1 {
		t.Error("a failing channel should not block the others")
	}
	if good.sent[0].Timestamp.IsZero() {
		t.Error("timestamp not filled")
	}
}

func TestLineNotifier(t *testing.T) {
	var auth string
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		r.ParseForm()
		form = r.PostForm
		w.Write([]byte(`{"status":200}`))
	}))
	defer srv.Close()

	ln := NewLineNotifier(config.LineConfig{Enabled: true, Endpoint: srv.URL, Token: "tok"})
	err := ln.Send(context.Background(), Notification{Title: "🔥 選股戰報 (05/03)", Message: "發現：1 檔"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if auth != "Bearer tok" {
		t.Errorf("Authorization = %q", auth)
	}
	if got := form.Get("message"); got != "\n🔥 選股戰報 (05/03)\n發現：1 檔" {
		t.Errorf("message = %q", got)
	}

	if NewLineNotifier(config.LineConfig{Enabled: true}).IsEnabled() {
		t.Error("LINE without a token should be disabled")
	}
}

func TestTelegramNotifier(t *testing.T) {
	var path string
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &payload)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegramNotifier(config.TelegramConfig{Enabled: true, APIBase: srv.URL + "/", BotToken: "123:abc", ChatID: "42"})
	if err := tg.Send(context.Background(), Notification{Title: "A<B", Message: "x & y"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/bot123:abc/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if payload["chat_id"] != "42" || payload["parse_mode"] != "HTML" {
		t.Errorf("payload = %v", payload)
	}
	if payload["text"] != "<b>A&lt;B</b>\n\nx &amp; y" {
		t.Errorf("text = %q", payload["text"])
	}
}

func TestWebhookNotifierStatusError(t *testing.T) {
	var payload map[string]interface{}
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &payload)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	wh := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	n := Notification{Type: NotificationMatches, Title: "t", Timestamp: time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)}
	if err := wh.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if payload["type"] != "matches" || payload["timestamp"] != "2024-05-03T10:00:00Z" {
		t.Errorf("payload = %v", payload)
	}

	status = http.StatusBadGateway
	if err := wh.Send(context.Background(), n); err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("err = %v, want status 502", err)
	}
}

func TestNewReturnsNoOpWhenDisabled(t *testing.T) {
	if _, ok := New(&config.NotificationConfig{}, zerolog.Nop()).(*NoOpNotifier); !ok {
		t.Error("disabled notifications should yield a NoOpNotifier")
	}
	mn, ok := New(&config.NotificationConfig{
		Enabled: true,
		Line:    config.LineConfig{Enabled: true, Token: "t"},
		Webhook: config.WebhookConfig{Enabled: true, URL: "http://localhost"},
	}, zerolog.Nop()).(*MultiNotifier)
	if !ok {
		t.Fatal("expected a MultiNotifier")
	}
	if got := strings.Join(mn.Channels(), ","); got != "line,webhook" {
		t.Errorf("channels = %q", got)
	}
}

func TestTerminalNotifier(t *testing.T) {
	var buf bytes.Buffer
	tn := NewTerminalNotifier(&buf)
	tn.SetColorEnabled(false)

	n := Notification{
		Type:      NotificationMatches,
		Title:     "🔥 選股戰報 (05/03)",
		Message:   "策略：x\n發現：1 檔",
		Timestamp: time.Date(2024, 5, 3, 18, 30, 5, 0, time.UTC),
	}
	if err := tn.Send(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	want := "\a[18:30:05] 🎯 MATCHES | 🔥 選股戰報 (05/03)\n    策略：x\n    發現：1 檔\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	tn.SetBellEnabled(false)
	tn.Send(context.Background(), Notification{Type: NotificationError, Title: "e"})
	if strings.Contains(buf.String(), "\a") {
		t.Error("bell rang while disabled")
	}
}
