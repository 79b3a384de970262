package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"epmasuppress/pkg/config"
)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
		$xml = @"
<toast>
	<visual>
		<binding template="ToastText02">
			<text id="1">%s</text>
			<text id="2">%s</text>
		</binding>
	</visual>
</toast>
"@
		$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
		$doc.LoadXml($xml)
		$toast = [Windows.UI.Notifications.ToastNotification]::new($doc)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("EPMA Suppress").Show($toast)
	`, title, message)

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

func platformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &LinuxNotificationSender{}
	case "darwin":
		return &MacOSNotificationSender{}
	case "windows":
		return &WindowsNotificationSender{}
	}
	return nil
}

// Notifier prints end-of-run notices and, when configured, raises a
// desktop notification
type Notifier struct {
	sender     NotificationSender
	enabled    bool
	onComplete bool
	onError    bool
	terminal   bool
}

// NewNotifier creates a Notifier for the current platform that always notifies
func NewNotifier() *Notifier {
	return &Notifier{
		sender:     platformSender(),
		enabled:    true,
		onComplete: true,
		onError:    true,
		terminal:   true,
	}
}

// NewNotifierFromConfig builds a Notifier honouring the notification settings
func NewNotifierFromConfig(cfg config.NotificationConfig) *Notifier {
	n := &Notifier{
		enabled:    cfg.Enabled,
		onComplete: cfg.OnComplete,
		onError:    cfg.OnError,
	}
	switch strings.ToLower(cfg.NotificationType) {
	case "desktop":
		n.sender = platformSender()
		n.terminal = true
	case "none":
		n.enabled = false
	default:
		n.terminal = true
	}
	return n
}

// WithSender replaces the desktop sender
func (n *Notifier) WithSender(s NotificationSender) *Notifier {
	n.sender = s
	return n
}

// SendNotification sends a desktop notification and prints to console
func (n *Notifier) SendNotification(title, message string) {
	if !n.enabled {
		return
	}
	n.print(Cyan(title), Yellow(message))
	n.send(title, message)
}

// SendError sends an error notification
func (n *Notifier) SendError(title, message string) {
	if !n.enabled || !n.onError {
		return
	}
	n.print(Red(title), Red(message))
	n.send(title, message)
}

// SendSuccess sends a success notification
func (n *Notifier) SendSuccess(title, message string) {
	if !n.enabled || !n.onComplete {
		return
	}
	n.print(Green(title), Green(message))
	n.send(title, message)
}

func (n *Notifier) print(title, message string) {
	if !n.terminal || IsQuietMode() {
		return
	}
	fmt.Fprintf(Output(), "\n%s: %s\n", title, message)
}

func (n *Notifier) send(title, message string) {
	if n.sender != nil {
		// a missing notify-send must not fail the run
		_ = n.sender.Send(title, message)
	}
}
