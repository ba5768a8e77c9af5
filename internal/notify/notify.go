// Package notify raises user-facing notifications.
package notify

import (
	"sync"

	"github.com/gen2brain/beeep"
	"github.com/sirupsen/logrus"

	"github.com/rclonetray/rclonetray/internal/logging"
)

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(title, message string)
}

// Desktop shows OS notifications and logs them. When the desktop refuses
// (no notification daemon, headless session) it keeps logging only.
type Desktop struct {
	log *logrus.Entry

	mu       sync.Mutex
	disabled bool
}

// NewDesktop creates a desktop notifier for appName.
func NewDesktop(appName string) *Desktop {
	beeep.AppName = appName
	return &Desktop{log: logging.NewLogger("notify")}
}

// Notify implements Notifier.
func (d *Desktop) Notify(title, message string) {
	d.log.WithField("title", title).Info(message)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disabled {
		return
	}
	if err := beeep.Notify(title, message, ""); err != nil {
		d.log.WithError(err).Warn("desktop notifications unavailable, logging only")
		d.disabled = true
	}
}

// Log writes notifications to a logger only.
type Log struct {
	Entry *logrus.Entry
}

// Notify implements Notifier.
func (l Log) Notify(title, message string) {
	entry := l.Entry
	if entry == nil {
		entry = logging.NewLogger("notify")
	}
	entry.WithField("title", title).Info(message)
}

// Recorder keeps notifications in memory, for tests.
type Recorder struct {
	mu       sync.Mutex
	Messages []Message
}

// Message is one recorded notification.
type Message struct {
	Title   string
	Message string
}

// Notify implements Notifier.
func (r *Recorder) Notify(title, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, Message{Title: title, Message: message})
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.Messages...)
}
