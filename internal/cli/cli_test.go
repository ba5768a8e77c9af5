package cli

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclonetray/rclonetray/internal/config"
	"github.com/rclonetray/rclonetray/internal/daemon/bookmark"
	"github.com/rclonetray/rclonetray/internal/daemon/rclone"
	"github.com/rclonetray/rclonetray/internal/daemon/server"
	"github.com/rclonetray/rclonetray/internal/jobs"
	"github.com/rclonetray/rclonetray/internal/logging"
	"github.com/rclonetray/rclonetray/internal/models"
	"github.com/rclonetray/rclonetray/internal/rc"
)

// stubBookmarks fails every action with err.
type stubBookmarks struct {
	err error
}

func (s stubBookmarks) Snapshot(context.Context) ([]bookmark.State, error) {
	return []bookmark.State{{Name: "docs", Type: "drive", Mounted: true}}, nil
}
func (s stubBookmarks) Mount(context.Context, string) (string, error) { return "/m/docs", s.err }
func (s stubBookmarks) Unmount(context.Context, string) error         { return s.err }
func (s stubBookmarks) Push(context.Context, string) error            { return s.err }
func (s stubBookmarks) Pull(context.Context, string) error            { return s.err }
func (s stubBookmarks) EnableAutopush(string) error                   { return s.err }
func (s stubBookmarks) DisableAutopush(string)                        {}
func (s stubBookmarks) Serve(context.Context, string, string) (rc.Serve, error) {
	return rc.Serve{ID: "1", Addr: "127.0.0.1:8080"}, s.err
}
func (s stubBookmarks) StopServe(context.Context, string, string) error { return s.err }
func (s stubBookmarks) Providers(context.Context) ([]rc.Provider, error) {
	return []rc.Provider{{Prefix: "drive", Description: "Google Drive"}}, s.err
}
func (s stubBookmarks) BookmarkConfig(_ context.Context, name string) (rc.Bookmark, error) {
	return rc.Bookmark{Name: name, Type: "drive", Params: map[string]any{"token": "{}"}}, s.err
}
func (s stubBookmarks) CreateBookmark(context.Context, string, string, map[string]any) error {
	return s.err
}
func (s stubBookmarks) UpdateBookmark(context.Context, string, map[string]any) error { return s.err }
func (s stubBookmarks) DeleteBookmark(context.Context, string) error                 { return s.err }

// startHost runs a control server recorded in a temporary daemon.yaml.
func startHost(t *testing.T, b server.Bookmarks) {
	t.Helper()
	t.Setenv(config.HomeEnv, t.TempDir())

	srv, err := server.New(server.Options{Bookmarks: b, Log: logging.Discard()})
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)

	require.NoError(t, config.SaveDaemonInfo(models.NewDaemonInfo(srv.Host(), srv.Port(), os.Getpid())))
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	return rootCmd.ExecuteContext(context.Background())
}

func TestCommandsWithoutDaemon(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	err := execute(t, "mount", "docs")
	assert.ErrorIs(t, err, errDaemonNotRunning)
}

func TestCommandsAgainstDaemon(t *testing.T) {
	startHost(t, stubBookmarks{})

	require.NoError(t, execute(t, "bookmarks"))
	require.NoError(t, execute(t, "mount", "docs"))
	require.NoError(t, execute(t, "serve", "docs", "webdav"))
	require.NoError(t, execute(t, "serve", "stop", "docs", "webdav"))
	require.NoError(t, execute(t, "autopush", "on", "docs"))
	require.NoError(t, execute(t, "push", "docs"))
	require.NoError(t, execute(t, "bookmarks", "providers", "--verbose"))
	require.NoError(t, execute(t, "bookmarks", "show", "docs"))
	require.NoError(t, execute(t, "bookmarks", "create", "mydrive", "drive", "scope=drive"))
	require.NoError(t, execute(t, "bookmarks", "update", "mydrive", "scope=drive.file"))
	require.NoError(t, execute(t, "bookmarks", "delete", "mydrive"))
	assert.Error(t, execute(t, "bookmarks", "create", "mydrive", "drive", "novalue"))
}

func TestCommandErrorsArePlainMessages(t *testing.T) {
	conflict := &jobs.ConflictError{Bookmark: "docs", Kind: jobs.KindPull, Active: jobs.KindPush}
	startHost(t, stubBookmarks{err: conflict})

	err := execute(t, "pull", "docs")
	require.Error(t, err)
	assert.Equal(t, "Cannot perform downloading and uploading at the same time", err.Error())
}

func TestRenderBookmarks(t *testing.T) {
	out := renderBookmarks(&server.BookmarkList{
		Bookmarks: []*server.Bookmark{
			{Name: "docs", Type: "drive", Mounted: true, MountPoint: "/m/docs", Serves: []*server.Serve{{Protocol: "ftp", Addr: "127.0.0.1:2121"}}},
			{Name: "photos", Type: "s3"},
		},
		Stale: true,
	})
	assert.Contains(t, out, "docs")
	assert.Contains(t, out, "mounted at /m/docs")
	assert.Contains(t, out, "serving ftp 127.0.0.1:2121")
	assert.Contains(t, out, "idle")
	assert.Contains(t, out, "last known list")

	assert.Contains(t, renderBookmarks(&server.BookmarkList{}), "No bookmarks")
}

func TestPreflightHint(t *testing.T) {
	assert.Contains(t, preflightHint(&rclone.StartupError{Reason: rclone.ReasonBinaryMissing}), "set-binary")
	assert.Contains(t, preflightHint(&rclone.StartupError{Reason: rclone.ReasonVersionTooOld}), "selfupdate")
	assert.Empty(t, preflightHint(&rclone.StartupError{Reason: rclone.ReasonBoot}))
	assert.Empty(t, preflightHint(errors.New("other")))
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"provider=AWS", "endpoint=https://s3.example.com/?a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"provider": "AWS",
		"endpoint": "https://s3.example.com/?a=b",
		"empty":    "",
	}, params)

	_, err = parseParams([]string{"=value"})
	assert.Error(t, err)
}

func TestRenderBookmarkConfigHidesSecrets(t *testing.T) {
	out := renderBookmarkConfig(&server.BookmarkConfig{
		Name:   "photos",
		Type:   "s3",
		Params: map[string]string{"region": "eu-west-1", "secret_access_key": "hunter2", "token": ""},
	})
	assert.Contains(t, out, "eu-west-1")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "********")
}

func TestRenderProviders(t *testing.T) {
	list := &server.ProviderList{Providers: []*server.Provider{{
		Prefix:      "s3",
		Description: "Amazon S3 Compliant Storage Providers",
		Options: []*server.ProviderOption{
			{Name: "provider", Help: "Choose your S3 provider.\nMore text", Required: true},
			{Name: "upload_cutoff", Advanced: true},
		},
	}}}
	assert.NotContains(t, renderProviders(list, false), "provider*")
	verbose := renderProviders(list, true)
	assert.Contains(t, verbose, "provider* Choose your S3 provider.")
	assert.NotContains(t, verbose, "More text")
	assert.NotContains(t, verbose, "upload_cutoff")
}
