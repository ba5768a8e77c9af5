package bookmark

import (
	"context"
	"sort"

	"github.com/rclonetray/rclonetray/internal/jobs"
	"github.com/rclonetray/rclonetray/internal/rc"
)

// ServeState is an active serve.
type ServeState struct {
	Protocol string
	Addr     string
}

// State is what a renderer needs to draw one bookmark.
type State struct {
	Name       string
	Type       string
	LocalPath  string
	MountPoint string
	Mounted    bool
	Pushing    bool
	Pulling    bool
	Autopush   bool
	Serves     []ServeState
}

// Busy reports whether any job is active.
func (s State) Busy() bool {
	return s.Mounted || s.Pushing || s.Pulling || s.Autopush || len(s.Serves) > 0
}

// Snapshot lists bookmarks with their job state. When the daemon cannot be
// asked, the last known list is used and the error is returned with it.
func (m *Manager) Snapshot(ctx context.Context) ([]State, error) {
	err := m.refresh(ctx)

	m.mu.Lock()
	catalog := append([]rc.Bookmark(nil), m.catalog...)
	m.mu.Unlock()

	active := m.opts.Registry.ListActive()
	settings := m.opts.Settings()

	known := map[string]bool{}
	states := make([]State, 0, len(catalog))
	for _, b := range catalog {
		known[b.Name] = true
		states = append(states, m.state(b.Name, b.Type, active[b.Name], settings.Bookmark(b.Name).LocalPath))
	}
	// Jobs for bookmarks missing from the catalog still get drawn.
	for name, byKind := range active {
		if !known[name] {
			states = append(states, m.state(name, "", byKind, settings.Bookmark(name).LocalPath))
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return states, err
}

func (m *Manager) state(name, typ string, byKind map[jobs.Kind]jobs.Job, local string) State {
	st := State{Name: name, Type: typ, LocalPath: local}
	for kind, job := range byKind {
		switch {
		case kind == jobs.KindMount:
			st.Mounted = true
			if md, ok := job.Metadata.(jobs.MountMetadata); ok {
				st.MountPoint = md.MountPoint
			}
		case kind == jobs.KindPush:
			st.Pushing = true
		case kind == jobs.KindPull:
			st.Pulling = true
		case kind == jobs.KindAutopush:
			st.Autopush = true
		case kind.IsServe():
			serve := ServeState{Protocol: kind.Protocol()}
			if md, ok := job.Metadata.(jobs.ServeMetadata); ok {
				serve.Addr = md.Addr
			}
			st.Serves = append(st.Serves, serve)
		}
	}
	sort.Slice(st.Serves, func(i, j int) bool { return st.Serves[i].Protocol < st.Serves[j].Protocol })
	return st
}

// refresh reloads the bookmark catalog, keeping the old one on failure.
func (m *Manager) refresh(ctx context.Context) error {
	list, err := m.opts.RC.Bookmarks(ctx)
	if err != nil {
		m.log.WithError(err).Debug("bookmark refresh failed, keeping last list")
		return err
	}
	m.mu.Lock()
	m.catalog = list
	m.mu.Unlock()
	return nil
}
