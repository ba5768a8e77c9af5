package server

import (
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Actions accepted by RunAction.
const (
	ActionMount       = "mount"
	ActionUnmount     = "unmount"
	ActionPush        = "push"
	ActionPull        = "pull"
	ActionAutopushOn  = "autopush-on"
	ActionAutopushOff = "autopush-off"
	ActionServe       = "serve"
	ActionServeStop   = "serve-stop"
)

// Actions lists every RunAction action.
var Actions = []string{
	ActionMount, ActionUnmount, ActionPush, ActionPull,
	ActionAutopushOn, ActionAutopushOff, ActionServe, ActionServeStop,
}

// DaemonStatus is the tray host's status.
type DaemonStatus struct {
	Host      string                 `json:"host"`
	Port      int32                  `json:"port"`
	Pid       int32                  `json:"pid"`
	Version   string                 `json:"version"`
	StartedAt *timestamppb.Timestamp `json:"started_at,omitempty"`
	Rclone    *RcloneStatus          `json:"rclone,omitempty"`
}

// RcloneStatus describes the supervised rclone daemon.
type RcloneStatus struct {
	Connected bool   `json:"connected"`
	Addr      string `json:"addr,omitempty"`
	Pid       int32  `json:"pid,omitempty"`
	Binary    string `json:"binary,omitempty"`
	Version   string `json:"version,omitempty"`
	// Reported by the running daemon.
	Platform  string `json:"platform,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
	// Set once the background release check has finished.
	LatestVersion   string `json:"latest_version,omitempty"`
	UpdateAvailable bool   `json:"update_available,omitempty"`
	ReleaseURL      string `json:"release_url,omitempty"`
}

// Bookmark is one configured remote with its job state.
type Bookmark struct {
	Name       string   `json:"name"`
	Type       string   `json:"type,omitempty"`
	LocalPath  string   `json:"local_path,omitempty"`
	MountPoint string   `json:"mount_point,omitempty"`
	Mounted    bool     `json:"mounted,omitempty"`
	Pushing    bool     `json:"pushing,omitempty"`
	Pulling    bool     `json:"pulling,omitempty"`
	Autopush   bool     `json:"autopush,omitempty"`
	Serves     []*Serve `json:"serves,omitempty"`
}

// Serve is an active serve of a bookmark.
type Serve struct {
	Protocol string `json:"protocol"`
	Addr     string `json:"addr,omitempty"`
}

// BookmarkList holds the bookmarks, sorted by name.
type BookmarkList struct {
	Bookmarks []*Bookmark `json:"bookmarks"`
	// Stale is set when the rclone daemon could not be asked and the list
	// is the last one seen.
	Stale bool `json:"stale,omitempty"`
}

// ActionRequest runs one action on a bookmark. Protocol is only used by
// serve and serve-stop.
type ActionRequest struct {
	Bookmark string `json:"bookmark"`
	Action   string `json:"action"`
	Protocol string `json:"protocol,omitempty"`
}

// ActionResult reports what an action produced.
type ActionResult struct {
	Bookmark   string `json:"bookmark"`
	Action     string `json:"action"`
	MountPoint string `json:"mount_point,omitempty"`
	Addr       string `json:"addr,omitempty"`
}

// ProviderOption is one parameter a provider accepts.
type ProviderOption struct {
	Name       string `json:"name"`
	Help       string `json:"help,omitempty"`
	Required   bool   `json:"required,omitempty"`
	Advanced   bool   `json:"advanced,omitempty"`
	IsPassword bool   `json:"is_password,omitempty"`
}

// Provider is a backend a bookmark can be created with.
type Provider struct {
	Prefix      string            `json:"prefix"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Options     []*ProviderOption `json:"options,omitempty"`
}

// ProviderList holds the supported providers, sorted by prefix.
type ProviderList struct {
	Providers []*Provider `json:"providers"`
}

// BookmarkRef names one bookmark.
type BookmarkRef struct {
	Name string `json:"name"`
}

// BookmarkConfig is a remote as stored in the rclone config.
type BookmarkConfig struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Params map[string]string `json:"params,omitempty"`
}

// BookmarkConfigRequest creates (Provider set) or updates a remote.
type BookmarkConfigRequest struct {
	Name     string            `json:"name"`
	Provider string            `json:"provider,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}
