package logwatch

import (
	"regexp"
	"strings"
)

// Signal is what a log line means to the startup state machine.
type Signal int

const (
	SignalNone Signal = iota
	SignalReady
	SignalRCFailed
	SignalInvalidPassword
	SignalFatal
)

func (s Signal) String() string {
	switch s {
	case SignalReady:
		return "ready"
	case SignalRCFailed:
		return "rc_failed"
	case SignalInvalidPassword:
		return "invalid_password"
	case SignalFatal:
		return "fatal"
	default:
		return "none"
	}
}

var readyPattern = regexp.MustCompile(`Serving remote control on\s+(\S+)`)

var rcFailedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Failed to start remote control`),
}

var passwordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)unable to decrypt configuration`),
	regexp.MustCompile(`(?i)couldn't decrypt configuration`),
	regexp.MustCompile(`(?i)most likely wrong password`),
	regexp.MustCompile(`(?i)failed to decrypt config`),
}

// DetectReady reports whether the line announces the RC server and returns
// the bound host:port. Scheme and trailing slash are stripped.
func DetectReady(message string) (addr string, ok bool) {
	m := readyPattern.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	addr = m[1]
	addr = strings.TrimPrefix(addr, "http://")
	addr = strings.TrimPrefix(addr, "https://")
	addr = strings.TrimRight(addr, "/")
	return addr, addr != ""
}

// DetectRCFailed reports whether the RC server failed to bind.
func DetectRCFailed(message string) bool {
	for _, p := range rcFailedPatterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}

// DetectInvalidPassword reports whether the config store could not be decrypted.
func DetectInvalidPassword(message string) bool {
	for _, p := range passwordPatterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}

// DetectFatal reports an unrecoverable error line.
func DetectFatal(line LogLine) bool {
	return line.Level == LevelError && strings.HasPrefix(line.Message, "Fatal error:")
}

// Classify returns the strongest signal carried by a line. Password
// failures take precedence since they are usually also fatal.
func Classify(line LogLine) Signal {
	switch {
	case DetectInvalidPassword(line.Message):
		return SignalInvalidPassword
	case DetectRCFailed(line.Message):
		return SignalRCFailed
	case DetectFatal(line):
		return SignalFatal
	}
	if _, ok := DetectReady(line.Message); ok {
		return SignalReady
	}
	return SignalNone
}
