// Package logwatch parses rclone daemon output and drives the startup state machine.
package logwatch

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// Level is the severity of a daemon log line.
type Level int

// Levels, most severe first. rclone's EMERGENCY/ALERT/CRITICAL fold into
// LevelError and WARNING folds into LevelNotice.
const (
	LevelError Level = iota
	LevelNotice
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelNotice:
		return "NOTICE"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps an rclone level name (any case) to a Level.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EMERGENCY", "ALERT", "CRITICAL", "ERROR":
		return LevelError, true
	case "WARNING", "WARN", "NOTICE":
		return LevelNotice, true
	case "INFO":
		return LevelInfo, true
	case "DEBUG":
		return LevelDebug, true
	}
	return LevelInfo, false
}

// LogLine is one parsed line of daemon output.
type LogLine struct {
	Time    time.Time
	Level   Level
	Source  string
	Message string
	Raw     string
}

type jsonLine struct {
	Time   string `json:"time"`
	Level  string `json:"level"`
	Msg    string `json:"msg"`
	Source string `json:"source"`
}

// timestampPattern matches rclone's "2006/01/02 15:04:05[.000000] " prefix.
var timestampPattern = regexp.MustCompile(`^(\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2})(?:\.\d+)?\s+`)

// levelPattern matches "LEVEL  : message" once the timestamp is gone.
var levelPattern = regexp.MustCompile(`^([A-Z]+)\s*:\s?(.*)$`)

// sourcePattern matches the "object: " prefix rclone puts before messages
// about a remote, file or subsystem.
var sourcePattern = regexp.MustCompile(`^([^\s:]+): (.*)$`)

// fatalPrefix starts the lines rclone's log.Fatalf writes. They carry a
// timestamp but no level.
const fatalPrefix = "Fatal error:"

// Parse accepts either a structured JSON line or a plain text line. Lines
// that match neither shape become LevelInfo with the raw text as message.
func Parse(raw string) LogLine {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "{") {
		var jl jsonLine
		if err := json.Unmarshal([]byte(trimmed), &jl); err == nil && (jl.Msg != "" || jl.Level != "") {
			level, _ := ParseLevel(jl.Level)
			line := LogLine{
				Level:   level,
				Source:  jl.Source,
				Message: strings.TrimRight(jl.Msg, "\n"),
				Raw:     raw,
			}
			if t, err := time.Parse(time.RFC3339Nano, jl.Time); err == nil {
				line.Time = t
			}
			return line
		}
	}

	line := LogLine{Level: LevelInfo, Message: trimmed, Raw: raw}
	if m := timestampPattern.FindStringSubmatch(trimmed); m != nil {
		if t, err := time.ParseInLocation("2006/01/02 15:04:05", m[1], time.Local); err == nil {
			line.Time = t
			line.Message = trimmed[len(m[0]):]
		}
	}

	if m := levelPattern.FindStringSubmatch(line.Message); m != nil {
		if level, ok := ParseLevel(m[1]); ok {
			line.Level = level
			line.Source, line.Message = splitSource(m[2])
			return line
		}
	}
	if strings.HasPrefix(line.Message, fatalPrefix) {
		line.Level = LevelError
	}
	return line
}

func splitSource(msg string) (source, message string) {
	if m := sourcePattern.FindStringSubmatch(msg); m != nil {
		return m[1], m[2]
	}
	return "", msg
}
