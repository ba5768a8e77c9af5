// Package rc is a client for the rclone remote-control API.
package rc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rclonetray/rclonetray/internal/logging"
)

// Source supplies the endpoint of the running daemon.
type Source interface {
	Endpoint() (addr, user, password string, ok bool)
}

// StaticSource is a fixed endpoint, mainly for tests and one-off tools.
type StaticSource struct {
	Addr     string
	User     string
	Password string
}

// Endpoint implements Source. It reports ok unless Addr is empty.
func (s StaticSource) Endpoint() (string, string, string, bool) {
	return s.Addr, s.User, s.Password, s.Addr != ""
}

// Client issues RC calls. It holds no per-call state and is safe for
// concurrent use; calls are never retried.
type Client struct {
	src  Source
	http *http.Client
	log  *logrus.Entry
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the client logger.
func WithLogger(log *logrus.Entry) Option {
	return func(cl *Client) { cl.log = log }
}

// New creates a client reading its endpoint from src on every call.
func New(src Source, opts ...Option) *Client {
	c := &Client{src: src, http: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.NewLogger("rc")
	}
	return c
}

// Call posts payload (or {} when nil) to command and returns the decoded
// result object.
func (c *Client) Call(ctx context.Context, command string, payload any) (map[string]any, error) {
	var out map[string]any
	if err := c.CallInto(ctx, command, payload, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// CallInto is Call decoding the result into out, which may be nil.
func (c *Client) CallInto(ctx context.Context, command string, payload, out any) error {
	addr, user, password, ok := c.src.Endpoint()
	if !ok || addr == "" {
		return ErrNotStarted
	}

	body := []byte("{}")
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return &CommandError{Command: command, Message: err.Error(), Err: err}
		}
		body = b
	}

	url := "http://" + addr + "/" + strings.TrimPrefix(command, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &CommandError{Command: command, Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if user != "" {
		req.SetBasicAuth(user, password)
	}

	c.log.WithField("command", command).Debug("rc call")
	resp, err := c.http.Do(req)
	if err != nil {
		return &CommandError{Command: command, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &CommandError{Command: command, Message: err.Error(), Status: resp.StatusCode, Err: err}
	}
	return decodeResponse(command, resp.StatusCode, raw, out)
}

// errorEnvelope is the shape rclone uses for failures.
type errorEnvelope struct {
	Error  *string `json:"error"`
	Status int     `json:"status"`
}

func decodeResponse(command string, status int, raw []byte, out any) error {
	var env errorEnvelope
	jsonErr := json.Unmarshal(raw, &env)

	if jsonErr == nil && env.Error != nil {
		if env.Status == 0 {
			env.Status = status
		}
		return &CommandError{Command: command, Message: *env.Error, Status: env.Status}
	}
	if status < 200 || status > 299 {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &CommandError{Command: command, Message: msg, Status: status}
	}
	if jsonErr != nil {
		return &CommandError{
			Command: command,
			Message: fmt.Sprintf("invalid JSON response: %v", jsonErr),
			Status:  status,
			Err:     jsonErr,
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &CommandError{Command: command, Message: err.Error(), Status: status, Err: err}
	}
	return nil
}

// IsCanceled reports whether err came from a cancelled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
