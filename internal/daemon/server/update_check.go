package server

import (
	"context"
	"sync"
	"time"

	"github.com/rclonetray/rclonetray/internal/version"
)

// updateState holds the result of the latest rclone release check.
type updateState struct {
	mu            sync.RWMutex
	checked       bool
	available     bool
	latestVersion string
	releaseURL    string
}

func (u *updateState) apply(rs *RcloneStatus) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if !u.checked {
		return
	}
	rs.LatestVersion = u.latestVersion
	rs.UpdateAvailable = u.available
	rs.ReleaseURL = u.releaseURL
}

// CheckRcloneRelease compares installed with the latest rclone release in
// the background. The result shows up in GetStatus.
func (s *Server) CheckRcloneRelease(ctx context.Context, installed version.Semver) <-chan struct{} {
	done := make(chan struct{})
	url := s.opts.ReleaseURL
	if url == "" {
		url = version.RcloneReleasesURL
	}
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		result, err := version.CheckLatestRclone(ctx, s.opts.HTTPClient, url, installed)
		if err != nil {
			s.log.WithError(err).Warn("rclone release check failed")
			return
		}

		s.updates.mu.Lock()
		s.updates.checked = true
		s.updates.available = result.Available
		s.updates.latestVersion = result.LatestVersion
		s.updates.releaseURL = result.ReleaseURL
		s.updates.mu.Unlock()

		if result.Available {
			s.log.Infof("rclone update available: v%s → v%s", installed, result.LatestVersion)
		} else {
			s.log.Infof("rclone is up to date (v%s)", installed)
		}
	}()
	return done
}
