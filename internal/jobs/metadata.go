package jobs

import (
	"errors"
	"fmt"
)

// ErrInvalidMetadata is returned when metadata does not match the job kind.
var ErrInvalidMetadata = errors.New("invalid job metadata")

// Metadata is the kind-specific payload of a job.
// Implementations are MountMetadata, SyncMetadata, AutopushMetadata and
// ServeMetadata.
type Metadata interface {
	validate() error
}

// MountMetadata describes a mount job.
type MountMetadata struct {
	MountPoint string
	Fs         string
}

func (m MountMetadata) validate() error {
	if m.MountPoint == "" {
		return errors.New("mount point is required")
	}
	return nil
}

// SyncMetadata describes a push or pull job.
type SyncMetadata struct {
	Src string
	Dst string
}

func (m SyncMetadata) validate() error {
	if m.Src == "" || m.Dst == "" {
		return errors.New("sync source and destination are required")
	}
	return nil
}

// AutopushMetadata describes an autopush watch.
type AutopushMetadata struct {
	LocalPath string
	Remote    string
}

func (m AutopushMetadata) validate() error {
	if m.LocalPath == "" {
		return errors.New("local path is required")
	}
	return nil
}

// ServeMetadata describes a serve job.
type ServeMetadata struct {
	ServeID string
	Addr    string
	Fs      string
}

func (m ServeMetadata) validate() error {
	if m.ServeID == "" {
		return errors.New("serve id is required")
	}
	return nil
}

func validateMetadata(k Kind, md Metadata) error {
	if md == nil {
		return nil
	}
	ok := false
	switch md.(type) {
	case MountMetadata:
		ok = k == KindMount
	case SyncMetadata:
		ok = k == KindPush || k == KindPull
	case AutopushMetadata:
		ok = k == KindAutopush
	case ServeMetadata:
		ok = k.IsServe()
	}
	if !ok {
		return fmt.Errorf("%w: %T for %s job", ErrInvalidMetadata, md, k)
	}
	if err := md.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return nil
}
