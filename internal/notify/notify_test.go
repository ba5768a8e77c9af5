package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rclonetray/rclonetray/internal/logging"
)

func TestRecorder(t *testing.T) {
	var r Recorder
	var n Notifier = &r
	n.Notify("rclone", "disconnected")
	n.Notify("mount", "failed")

	assert.Equal(t, []Message{{"rclone", "disconnected"}, {"mount", "failed"}}, r.All())
}

func TestLogNotifier(t *testing.T) {
	var n Notifier = Log{Entry: logging.Discard()}
	n.Notify("title", "message")
}
