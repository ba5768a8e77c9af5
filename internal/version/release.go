package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rclonetray/rclonetray/internal/buildinfo"
)

// RcloneReleasesURL is the GitHub endpoint for the latest rclone release.
const RcloneReleasesURL = "https://api.github.com/repos/rclone/rclone/releases/latest"

// ReleaseInfo contains information about a GitHub release.
type ReleaseInfo struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// CheckResult compares an installed version against the latest release.
type CheckResult struct {
	Available     bool
	Installed     Semver
	LatestVersion string
	ReleaseURL    string
}

// CheckLatestRclone queries url (RcloneReleasesURL in production) and
// reports whether a newer rclone than installed exists.
func CheckLatestRclone(ctx context.Context, client *http.Client, url string, installed Semver) (*CheckResult, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch releases: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &CheckResult{Installed: installed}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned %d", resp.StatusCode)
	}

	var release ReleaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}

	latestVersion := strings.TrimPrefix(release.TagName, "v")
	latest, err := ParseSemver(latestVersion)
	if err != nil {
		return nil, fmt.Errorf("parse latest version %q: %w", latestVersion, err)
	}

	return &CheckResult{
		Available:     installed.LessThan(latest),
		Installed:     installed,
		LatestVersion: latestVersion,
		ReleaseURL:    release.HTMLURL,
	}, nil
}
