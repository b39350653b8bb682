// Package notify delivers scan summaries and errors to LINE, Telegram and
// webhook channels.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"tw-screener/internal/config"
	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/models"
	"tw-screener/internal/screener"
	"tw-screener/internal/security"
	"tw-screener/pkg/utils"
)

// Default endpoints.
const (
	DefaultLineEndpoint    = "https://notify-api.line.me/api/notify"
	DefaultTelegramAPIBase = "https://api.telegram.org"

	// SummaryTop is the number of matches listed in a scan summary.
	SummaryTop = 3

	sendTimeout = 10 * time.Second
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendScanSummary(ctx context.Context, summary *ScanSummary) error
	SendError(ctx context.Context, err error, context string) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationMatches NotificationType = "matches"
	NotificationSummary NotificationType = "summary"
	NotificationError   NotificationType = "error"
	NotificationInfo    NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll         NotificationLevel = "all"
	LevelMatchesOnly NotificationLevel = "matches_only"
	LevelErrorsOnly  NotificationLevel = "errors_only"
)

// ScanSummary is the digest of one finished scan.
type ScanSummary struct {
	Strategy string // display label
	Date     time.Time
	Scanned  int
	Matches  int
	Top      []models.ScanResult
	Warnings []string
}

// SummaryFromReport builds the digest of a scan, listing the first SummaryTop
// results in scan order.
func SummaryFromReport(r *screener.Report) *ScanSummary {
	return &ScanSummary{
		Strategy: r.Strategy.Label(),
		Date:     r.StartedAt,
		Scanned:  r.Total,
		Matches:  len(r.Results),
		Top:      r.Top(SummaryTop),
		Warnings: r.Warnings,
	}
}

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// NewMultiNotifier creates a new MultiNotifier with the given configuration.
func NewMultiNotifier(cfg *config.NotificationConfig, logger zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]NotificationChannel, 0),
		level:    NotificationLevel(cfg.Level),
		logger:   logger.With().Str("component", "notify").Logger(),
	}

	if mn.level == "" {
		mn.level = LevelAll
	}

	if cfg.Line.Enabled {
		mn.channels = append(mn.channels, NewLineNotifier(cfg.Line))
	}
	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, NewTelegramNotifier(cfg.Telegram))
	}
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}

	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels returns the names of the enabled channels.
func (mn *MultiNotifier) Channels() []string {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	var names []string
	for _, ch := range mn.channels {
		if ch.IsEnabled() {
			names = append(names, ch.Name())
		}
	}
	return names
}

func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelMatchesOnly:
		return notifType == NotificationMatches
	case LevelErrorsOnly:
		return notifType == NotificationError
	default:
		return true
	}
}

// Send sends a notification to all enabled channels. A failing channel does
// not stop the others.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = utils.TaipeiNow()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			mn.logger.Warn().Err(err).Str("channel", ch.Name()).Msg("Notification failed")
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrNotifyFailed, strings.Join(errs, "; "))
	}
	return nil
}

// SendScanSummary sends the scan digest. A scan without matches is a
// summary and is suppressed at the matches_only level.
func (mn *MultiNotifier) SendScanSummary(ctx context.Context, summary *ScanSummary) error {
	title, message := FormatScanSummary(summary)

	notifType := NotificationSummary
	if summary.Matches > 0 {
		notifType = NotificationMatches
	}

	codes := make([]string, 0, len(summary.Top))
	for _, r := range summary.Top {
		codes = append(codes, r.Code)
	}

	return mn.Send(ctx, Notification{
		Type:    notifType,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"strategy": summary.Strategy,
			"date":     utils.ISODate(summary.Date),
			"scanned":  summary.Scanned,
			"matches":  summary.Matches,
			"top":      codes,
		},
	})
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	title := "❌ 掃描錯誤"
	message := fmt.Sprintf("Context: %s\nError: %v\nTime: %s",
		errContext, err, utils.TaipeiNow().Format("15:04:05"))

	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   title,
		Message: message,
		Data: map[string]interface{}{
			"context": errContext,
			"error":   err.Error(),
		},
	})
}

// FormatScanSummary renders the digest as a title and body:
//
//	🔥 選股戰報 (05/03)
//	策略：籌碼衝鋒 (集中度高)
//	發現：2 檔
//	• 台積電(2330): 585元 / YoY 31.98%
func FormatScanSummary(s *ScanSummary) (string, string) {
	title := fmt.Sprintf("🔥 選股戰報 (%s)", s.Date.In(utils.TaipeiLocation).Format("01/02"))

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("策略：%s\n", s.Strategy))
	sb.WriteString(fmt.Sprintf("發現：%d 檔\n", s.Matches))
	for _, r := range s.Top {
		sb.WriteString(fmt.Sprintf("• %s(%s): %s元 / YoY %s%%\n",
			r.Name, r.Code, formatNumber(r.Close), formatNumber(r.RevenueYoY)))
	}
	if s.Matches == 0 {
		sb.WriteString("今日無目標\n")
	}
	for _, w := range s.Warnings {
		sb.WriteString("⚠️ " + w + "\n")
	}
	return title, strings.TrimRight(sb.String(), "\n")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func newRestyClient() *resty.Client {
	return resty.New().
		SetTimeout(sendTimeout).
		SetHeader("User-Agent", "tw-screener/1.0")
}

func checkResponse(channel string, resp *resty.Response, err error) error {
	if err != nil {
		// resty errors carry the request URL, which holds the Telegram token.
		return security.RedactError(fmt.Errorf("sending %s notification: %w", channel, err))
	}
	if resp.IsError() {
		return fmt.Errorf("%s returned status %d", channel, resp.StatusCode())
	}
	return nil
}

// LineNotifier posts to LINE Notify.
type LineNotifier struct {
	endpoint string
	token    string
	enabled  bool
	client   *resty.Client
}

// NewLineNotifier creates a new LineNotifier.
func NewLineNotifier(cfg config.LineConfig) *LineNotifier {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultLineEndpoint
	}
	return &LineNotifier{
		endpoint: endpoint,
		token:    cfg.Token,
		enabled:  cfg.Enabled && cfg.Token != "",
		client:   newRestyClient(),
	}
}

// Name returns the name of the notifier.
func (l *LineNotifier) Name() string {
	return "line"
}

// IsEnabled returns whether the notifier is enabled.
func (l *LineNotifier) IsEnabled() bool {
	return l.enabled
}

// Send posts the message form field with a bearer token. The body starts with
// a newline so the title sits below the LINE Notify sender name.
func (l *LineNotifier) Send(ctx context.Context, n Notification) error {
	if !l.enabled {
		return nil
	}

	resp, err := l.client.R().
		SetContext(ctx).
		SetAuthToken(l.token).
		SetFormData(map[string]string{"message": "\n" + n.Title + "\n" + n.Message}).
		Post(l.endpoint)
	return checkResponse("line", resp, err)
}

// WebhookNotifier sends notifications via HTTP webhook.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *resty.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client:  newRestyClient(),
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send posts the notification as JSON.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(w.url)
	return checkResponse("webhook", resp, err)
}

// TelegramNotifier sends notifications via Telegram bot.
type TelegramNotifier struct {
	apiBase  string
	botToken string
	chatID   string
	enabled  bool
	client   *resty.Client
}

// NewTelegramNotifier creates a new TelegramNotifier.
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	apiBase := strings.TrimRight(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = DefaultTelegramAPIBase
	}
	return &TelegramNotifier{
		apiBase:  apiBase,
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client:   newRestyClient(),
	}
}

// Name returns the name of the notifier.
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// IsEnabled returns whether the notifier is enabled.
func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

// Send sends a notification via Telegram.
func (t *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	if !t.enabled {
		return nil
	}

	// HTML parse mode
	text := fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(n.Title), escapeHTML(n.Message))

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		Post(fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken))
	return checkResponse("telegram", resp, err)
}

// escapeHTML escapes HTML special characters for Telegram.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// NoOpNotifier is a notifier that does nothing.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing.
func (n *NoOpNotifier) Send(ctx context.Context, notif Notification) error {
	return nil
}

// SendScanSummary does nothing.
func (n *NoOpNotifier) SendScanSummary(ctx context.Context, summary *ScanSummary) error {
	return nil
}

// SendError does nothing.
func (n *NoOpNotifier) SendError(ctx context.Context, err error, context string) error {
	return nil
}

// New returns a MultiNotifier when notifications are enabled, otherwise a NoOpNotifier.
func New(cfg *config.NotificationConfig, logger zerolog.Logger) Notifier {
	if !cfg.Enabled {
		return NewNoOpNotifier()
	}
	return NewMultiNotifier(cfg, logger)
}
