// Package rctest provides an in-memory rclone RC daemon for tests.
package rctest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rclonetray/rclonetray/internal/rc"
)

// Call is one request received by the server.
type Call struct {
	Command string
	Payload map[string]any
}

// Server answers the subset of RC commands the tray uses.
type Server struct {
	*httptest.Server

	User     string
	Password string

	mu        sync.Mutex
	calls     []Call
	providers []map[string]any
	remotes   map[string]map[string]any
	mounts    map[string]string
	serves    map[string]map[string]any
	failures  map[string]string
	options   map[string]map[string]any

	// OnSync, when set, runs for every sync/sync without holding the lock.
	OnSync func(src, dst string) error
}

// NewServer starts a server with basic auth u/p and a few providers.
func NewServer() *Server {
	s := &Server{
		User:     "u",
		Password: "p",
		providers: []map[string]any{
			{"Name": "drive", "Prefix": "drive", "Description": "Google Drive"},
			{"Name": "local", "Prefix": "local", "Description": "Local Disk"},
			{"Name": "s3", "Prefix": "s3", "Description": "Amazon S3"},
			{"Name": "memory", "Prefix": "memory", "Description": "In memory object storage system."},
			{"Name": "crypt", "Prefix": "crypt", "Description": "Encrypt/Decrypt a remote"},
			{"Name": "dropbox", "Prefix": "dropbox", "Description": "Dropbox"},
		},
		remotes:  map[string]map[string]any{},
		mounts:   map[string]string{},
		serves:   map[string]map[string]any{},
		failures: map[string]string{},
		options:  map[string]map[string]any{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Addr is the host:port the server listens on.
func (s *Server) Addr() string {
	return strings.TrimPrefix(s.URL, "http://")
}

// Source returns an rc.Source pointing at the server.
func (s *Server) Source() rc.StaticSource {
	return rc.StaticSource{Addr: s.Addr(), User: s.User, Password: s.Password}
}

// Client returns an rc.Client pointing at the server.
func (s *Server) Client() *rc.Client {
	return rc.New(s.Source())
}

// AddRemote seeds the config store.
func (s *Server) AddRemote(name, typ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remotes[name] = map[string]any{"type": typ}
}

// Fail makes command answer with an error until cleared with an empty message.
func (s *Server) Fail(command, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message == "" {
		delete(s.failures, command)
		return
	}
	s.failures[command] = message
}

// Calls returns the commands received so far, optionally filtered.
func (s *Server) Calls(command string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if command == "" || c.Command == command {
			out = append(out, c)
		}
	}
	return out
}

// Mounts returns mount point → fs.
func (s *Server) Mounts() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.mounts))
	for k, v := range s.mounts {
		out[k] = v
	}
	return out
}

// Serves returns the number of running serve instances.
func (s *Server) Serves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.serves)
}

// Options returns the last options/set value for block.
func (s *Server) Options(block string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options[block]
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	user, pass, _ := r.BasicAuth()
	if user != s.User || pass != s.Password {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	payload := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad JSON: "+err.Error())
		return
	}
	command := strings.TrimPrefix(r.URL.Path, "/")

	s.mu.Lock()
	s.calls = append(s.calls, Call{Command: command, Payload: payload})
	if msg, ok := s.failures[command]; ok {
		s.mu.Unlock()
		writeError(w, http.StatusInternalServerError, msg)
		return
	}
	s.mu.Unlock()

	if command == "sync/sync" {
		if s.OnSync != nil {
			if err := s.OnSync(str(payload, "srcFs"), str(payload, "dstFs")); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, map[string]any{})
		return
	}

	s.mu.Lock()
	result, status, errMsg := s.dispatchLocked(command, payload)
	s.mu.Unlock()
	if errMsg != "" {
		writeError(w, status, errMsg)
		return
	}
	writeJSON(w, result)
}

func (s *Server) dispatchLocked(command string, p map[string]any) (map[string]any, int, string) {
	switch command {
	case "config/providers":
		return map[string]any{"providers": s.providers}, 0, ""

	case "config/dump":
		out := map[string]any{}
		for name, params := range s.remotes {
			out[name] = params
		}
		return out, 0, ""

	case "config/get":
		params, ok := s.remotes[str(p, "name")]
		if !ok {
			// rclone answers an empty object for unknown remotes.
			return map[string]any{}, 0, ""
		}
		return params, 0, ""

	case "config/create":
		name, typ := str(p, "name"), str(p, "type")
		if name == "" || typ == "" {
			return nil, http.StatusBadRequest, "name and type are required"
		}
		params := map[string]any{"type": typ}
		if extra, ok := p["parameters"].(map[string]any); ok {
			for k, v := range extra {
				params[k] = v
			}
		}
		s.remotes[name] = params
		return map[string]any{}, 0, ""

	case "config/update":
		params, ok := s.remotes[str(p, "name")]
		if !ok {
			return nil, http.StatusNotFound, "couldn't find remote"
		}
		if extra, ok := p["parameters"].(map[string]any); ok {
			for k, v := range extra {
				params[k] = v
			}
		}
		return map[string]any{}, 0, ""

	case "config/delete":
		delete(s.remotes, str(p, "name"))
		return map[string]any{}, 0, ""

	case "mount/mount":
		mp := str(p, "mountPoint")
		if _, busy := s.mounts[mp]; busy {
			return nil, http.StatusInternalServerError, fmt.Sprintf("mount point %s already in use", mp)
		}
		s.mounts[mp] = str(p, "fs")
		return map[string]any{}, 0, ""

	case "mount/unmount":
		mp := str(p, "mountPoint")
		if _, ok := s.mounts[mp]; !ok {
			return nil, http.StatusInternalServerError, "mount point " + mp + " not found"
		}
		delete(s.mounts, mp)
		return map[string]any{}, 0, ""

	case "mount/listmounts":
		list := []map[string]any{}
		for mp, fs := range s.mounts {
			list = append(list, map[string]any{"Fs": fs, "MountPoint": mp})
		}
		return map[string]any{"mountPoints": list}, 0, ""

	case "mount/unmountall":
		s.mounts = map[string]string{}
		return map[string]any{}, 0, ""

	case "serve/start":
		id := str(p, "type") + "-" + uuid.NewString()[:8]
		s.serves[id] = p
		return map[string]any{"id": id, "addr": "127.0.0.1:8080"}, 0, ""

	case "serve/stop":
		id := str(p, "id")
		if _, ok := s.serves[id]; !ok {
			return nil, http.StatusNotFound, "serve " + id + " not found"
		}
		delete(s.serves, id)
		return map[string]any{}, 0, ""

	case "options/set":
		for block, v := range p {
			if m, ok := v.(map[string]any); ok {
				s.options[block] = m
			}
		}
		return map[string]any{}, 0, ""

	case "core/version":
		return map[string]any{"version": "v1.70.1", "os": "linux", "arch": "amd64", "goVersion": "go1.24"}, 0, ""

	case "core/quit":
		return map[string]any{}, 0, ""
	}
	return nil, http.StatusNotFound, "couldn't find method \"" + command + "\""
}

func str(p map[string]any, key string) string {
	v, _ := p[key].(string)
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg, "status": status})
}
