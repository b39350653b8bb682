package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// TerminalNotifier prints notifications to a terminal, for foreground
// schedule runs.
type TerminalNotifier struct {
	out          io.Writer
	mu           sync.Mutex
	bellEnabled  bool
	colorEnabled bool
}

// NewTerminalNotifier creates a new TerminalNotifier writing to out.
func NewTerminalNotifier(out io.Writer) *TerminalNotifier {
	return &TerminalNotifier{
		out:          out,
		bellEnabled:  true,
		colorEnabled: true,
	}
}

// SetBellEnabled enables or disables the terminal bell.
func (tn *TerminalNotifier) SetBellEnabled(enabled bool) {
	tn.mu.Lock()
	tn.bellEnabled = enabled
	tn.mu.Unlock()
}

// SetColorEnabled enables or disables colored output.
func (tn *TerminalNotifier) SetColorEnabled(enabled bool) {
	tn.mu.Lock()
	tn.colorEnabled = enabled
	tn.mu.Unlock()
}

// Name returns the name of the notifier.
func (tn *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled returns whether the notifier is enabled.
func (tn *TerminalNotifier) IsEnabled() bool {
	return tn.out != nil
}

// Send writes the formatted notification. Matches and errors ring the bell.
func (tn *TerminalNotifier) Send(ctx context.Context, n Notification) error {
	tn.mu.Lock()
	defer tn.mu.Unlock()

	if tn.bellEnabled && (n.Type == NotificationMatches || n.Type == NotificationError) {
		fmt.Fprint(tn.out, "\a")
	}
	_, err := fmt.Fprintln(tn.out, FormatNotification(n, tn.colorEnabled))
	return err
}

// FormatNotification formats a notification for terminal display.
func FormatNotification(n Notification, colorEnabled bool) string {
	var indicator string
	c := color.New(color.FgWhite)

	switch n.Type {
	case NotificationMatches:
		indicator = "🎯 MATCHES"
		c = color.New(color.FgGreen, color.Bold)
	case NotificationSummary:
		indicator = "📊 SUMMARY"
		c = color.New(color.FgCyan)
	case NotificationError:
		indicator = "❌ ERROR"
		c = color.New(color.FgRed, color.Bold)
	default:
		indicator = "ℹ️  INFO"
	}

	if colorEnabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}

	var sb strings.Builder
	sb.WriteString(c.Sprintf("[%s] %s", n.Timestamp.Format("15:04:05"), indicator))
	sb.WriteString(" | " + n.Title)
	for _, line := range strings.Split(n.Message, "\n") {
		if line != "" {
			sb.WriteString("\n    " + line)
		}
	}
	return sb.String()
}
