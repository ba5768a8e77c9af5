package jobs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a job type. Serve kinds carry their protocol: "serve:webdav".
type Kind string

const (
	KindMount    Kind = "mount"
	KindPush     Kind = "push"
	KindPull     Kind = "pull"
	KindAutopush Kind = "autopush"

	servePrefix = "serve:"
)

// ServeProtocols are the protocols rclone can serve.
var ServeProtocols = []string{"http", "webdav", "ftp", "sftp", "dlna", "nfs", "restic", "s3"}

// ErrInvalidKind is returned for unknown kinds.
var ErrInvalidKind = errors.New("invalid job kind")

// Serve returns the serve kind for protocol.
func Serve(protocol string) Kind {
	return Kind(servePrefix + protocol)
}

// IsServe reports whether k is a serve kind.
func (k Kind) IsServe() bool {
	return strings.HasPrefix(string(k), servePrefix)
}

// Protocol returns the serve protocol, or "" for other kinds.
func (k Kind) Protocol() string {
	if !k.IsServe() {
		return ""
	}
	return strings.TrimPrefix(string(k), servePrefix)
}

// Validate checks that k is a known kind.
func (k Kind) Validate() error {
	switch k {
	case KindMount, KindPush, KindPull, KindAutopush:
		return nil
	}
	if p := k.Protocol(); p != "" {
		for _, known := range ServeProtocols {
			if p == known {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidKind, string(k))
}

// conflictsWith lists the kinds that may not run beside k on one bookmark.
func (k Kind) conflictsWith() []Kind {
	switch k {
	case KindPush:
		return []Kind{KindPull}
	case KindPull:
		return []Kind{KindPush}
	}
	return nil
}
