package rc

import "context"

// Mount describes an active mount as reported by mount/listmounts.
type Mount struct {
	Fs         string `json:"Fs"`
	MountPoint string `json:"MountPoint"`
	MountedOn  string `json:"MountedOn"`
}

// MountOptions are optional mount/mount parameters.
type MountOptions struct {
	MountType string         `json:"mountType,omitempty"`
	VFSOpt    map[string]any `json:"vfsOpt,omitempty"`
	MountOpt  map[string]any `json:"mountOpt,omitempty"`
}

// Mount mounts fs (e.g. "drive:" or "drive:photos") at mountPoint.
func (c *Client) Mount(ctx context.Context, fs, mountPoint string, opts MountOptions) error {
	payload := map[string]any{"fs": fs, "mountPoint": mountPoint}
	if opts.MountType != "" {
		payload["mountType"] = opts.MountType
	}
	if len(opts.VFSOpt) > 0 {
		payload["vfsOpt"] = opts.VFSOpt
	}
	if len(opts.MountOpt) > 0 {
		payload["mountOpt"] = opts.MountOpt
	}
	_, err := c.Call(ctx, "mount/mount", payload)
	return err
}

// Unmount unmounts the given mount point.
func (c *Client) Unmount(ctx context.Context, mountPoint string) error {
	_, err := c.Call(ctx, "mount/unmount", map[string]any{"mountPoint": mountPoint})
	return err
}

// ListMounts returns the daemon's active mounts.
func (c *Client) ListMounts(ctx context.Context) ([]Mount, error) {
	var resp struct {
		MountPoints []Mount `json:"mountPoints"`
	}
	if err := c.CallInto(ctx, "mount/listmounts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.MountPoints, nil
}

// UnmountAll unmounts everything the daemon has mounted.
func (c *Client) UnmountAll(ctx context.Context) error {
	_, err := c.Call(ctx, "mount/unmountall", nil)
	return err
}

// Sync makes dst identical to src and blocks until the sync finishes.
func (c *Client) Sync(ctx context.Context, src, dst string) error {
	_, err := c.Call(ctx, "sync/sync", map[string]any{"srcFs": src, "dstFs": dst})
	return err
}

// ServeOptions are passed to serve/start next to type and fs.
type ServeOptions struct {
	Addr  string
	Extra map[string]any
}

// Serve is a running serve instance.
type Serve struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// ServeStart exposes fs over protocol and returns the instance id.
func (c *Client) ServeStart(ctx context.Context, protocol, fs string, opts ServeOptions) (Serve, error) {
	payload := map[string]any{"type": protocol, "fs": fs}
	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	payload["addr"] = addr
	for k, v := range opts.Extra {
		payload[k] = v
	}
	var out Serve
	err := c.CallInto(ctx, "serve/start", payload, &out)
	return out, err
}

// ServeStop stops a serve instance.
func (c *Client) ServeStop(ctx context.Context, id string) error {
	_, err := c.Call(ctx, "serve/stop", map[string]any{"id": id})
	return err
}

// SetOptions changes global options, keyed by block (main, vfs, mount, ...).
func (c *Client) SetOptions(ctx context.Context, blocks map[string]map[string]any) error {
	_, err := c.Call(ctx, "options/set", blocks)
	return err
}

// VersionInfo is the core/version response.
type VersionInfo struct {
	Version   string `json:"version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	GoVersion string `json:"goVersion"`
}

// Version asks the daemon for its version.
func (c *Client) Version(ctx context.Context) (VersionInfo, error) {
	var out VersionInfo
	err := c.CallInto(ctx, "core/version", nil, &out)
	return out, err
}

// Quit asks the daemon to exit.
func (c *Client) Quit(ctx context.Context) error {
	_, err := c.Call(ctx, "core/quit", nil)
	return err
}
