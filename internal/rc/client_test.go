package rc_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclonetray/rclonetray/internal/logging"
	"github.com/rclonetray/rclonetray/internal/rc"
	"github.com/rclonetray/rclonetray/internal/rc/rctest"
)

func newClient(srv *httptest.Server) *rc.Client {
	addr := strings.TrimPrefix(srv.URL, "http://")
	return rc.New(rc.StaticSource{Addr: addr, User: "u", Password: "p"}, rc.WithLogger(logging.Discard()))
}

func TestCallBeforeConnectFails(t *testing.T) {
	c := rc.New(rc.StaticSource{}, rc.WithLogger(logging.Discard()))
	_, err := c.Call(context.Background(), "core/version", nil)
	assert.ErrorIs(t, err, rc.ErrNotStarted)
}

func TestCallSendsJSONPost(t *testing.T) {
	var gotMethod, gotPath, gotType, gotBody, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotUser, _, _ = r.BasicAuth()
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		b, _ := json.Marshal(body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	out, err := newClient(srv).Call(context.Background(), "operations/list", nil)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/operations/list", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "{}", gotBody)
	assert.Equal(t, "u", gotUser)
}

func TestErrorFieldOnSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"remote not found"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv).Call(context.Background(), "config/get", map[string]any{"name": "x"})
	ce, ok := rc.AsCommandError(err)
	require.True(t, ok)
	assert.Equal(t, "remote not found", ce.Error())
	assert.Equal(t, "config/get", ce.Command)
	assert.Equal(t, http.StatusOK, ce.Status)
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"rclone error envelope", 500, `{"error":"directory not found","status":500}`, "directory not found"},
		{"plain text failure", 502, "bad gateway", "bad gateway"},
		{"empty failure", 404, "", "Not Found"},
		{"invalid json", 200, "not json", "invalid JSON response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newClient(srv).Call(context.Background(), "sync/sync", nil)
			ce, ok := rc.AsCommandError(err)
			require.True(t, ok)
			assert.Equal(t, "sync/sync", ce.Command)
			assert.Contains(t, ce.Message, tt.message)
			assert.Equal(t, tt.status, ce.Status)
		})
	}
}

func TestTransportFailureIsCommandError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	c := newClient(srv)
	srv.Close()

	_, err := c.Call(context.Background(), "core/version", nil)
	ce, ok := rc.AsCommandError(err)
	require.True(t, ok)
	assert.Equal(t, "core/version", ce.Command)
	assert.Zero(t, ce.Status)
	assert.Error(t, ce.Unwrap())
}

func TestCallCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sync/sync" {
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newClient(srv)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Call(ctx, "sync/sync", nil)
	require.Error(t, err)
	assert.True(t, rc.IsCanceled(err))

	// A cancelled call leaves the client usable.
	_, err = c.Call(context.Background(), "core/version", nil)
	assert.NoError(t, err)
}

func TestNotFound(t *testing.T) {
	srv := rctest.NewServer()
	defer srv.Close()

	_, err := srv.Client().Call(context.Background(), "nope/nope", nil)
	ce, ok := rc.AsCommandError(err)
	require.True(t, ok)
	assert.True(t, ce.NotFound())
	assert.False(t, errors.Is(err, rc.ErrNotStarted))
}
