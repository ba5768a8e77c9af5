// Package mountpoint picks local mount targets for bookmarks.
package mountpoint

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rclonetray/rclonetray/internal/logging"
)

var (
	// ErrNoFreeLetter means every drive letter in the pool is in use.
	ErrNoFreeLetter = errors.New("no free drive letter")
	// ErrNoFreeMountpoint means MaxAttempts suffixed candidates were all unusable.
	ErrNoFreeMountpoint = errors.New("no free mountpoint")
	// ErrInvalidBookmark rejects names that cannot form a path component.
	ErrInvalidBookmark = errors.New("invalid bookmark name")
)

// DefaultKind is the path prefix of POSIX mount directories.
const DefaultKind = "volume"

// MaxAttempts bounds the suffix search on POSIX.
const MaxAttempts = 100

// Assignment is an allocated mount target.
type Assignment struct {
	Bookmark string
	Path     string

	release func() error
	once    sync.Once
	err     error
}

// Release frees the target. On POSIX the directory is removed only while
// it exists and is empty. Safe to call more than once.
func (a *Assignment) Release() error {
	a.once.Do(func() {
		if a.release != nil {
			a.err = a.release()
		}
	})
	return a.err
}

// Options configure an Allocator. Zero values select the current platform.
type Options struct {
	// Home is the parent of POSIX mount directories.
	Home string
	// Kind prefixes directory names: <home>/<kind>.<name>.rclone.
	Kind string
	// Windows selects drive-letter allocation.
	Windows bool
	// UsedDrives returns the logical-drive bitmask (bit 0 = A:).
	UsedDrives func() (uint32, error)
	Log        *logrus.Entry
}

// Allocator hands out collision-free mount targets. Targets handed out and
// not yet released are never handed out again.
type Allocator struct {
	opts Options
	log  *logrus.Entry

	mu      sync.Mutex
	claimed map[string]bool
}

// New creates an allocator.
func New(opts Options) (*Allocator, error) {
	if opts.Kind == "" {
		opts.Kind = DefaultKind
	}
	if !opts.Windows && runtime.GOOS == "windows" && opts.Home == "" {
		opts.Windows = true
	}
	if opts.Windows && opts.UsedDrives == nil {
		opts.UsedDrives = logicalDrives
	}
	if !opts.Windows && opts.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		opts.Home = home
	}
	log := opts.Log
	if log == nil {
		log = logging.NewLogger("mountpoint")
	}
	return &Allocator{opts: opts, log: log, claimed: map[string]bool{}}, nil
}

// ValidateName reports whether bookmark can name both an rclone remote
// and a mount directory.
func ValidateName(bookmark string) error {
	if bookmark == "" || strings.ContainsAny(bookmark, `/\:`) || strings.TrimSpace(bookmark) != bookmark {
		return fmt.Errorf("%w %q", ErrInvalidBookmark, bookmark)
	}
	return nil
}

// Allocate returns a mount target for bookmark.
func (a *Allocator) Allocate(bookmark string) (*Assignment, error) {
	if err := ValidateName(bookmark); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.opts.Windows {
		return a.allocateLetterLocked(bookmark)
	}
	return a.allocateDirLocked(bookmark)
}

func (a *Allocator) allocateDirLocked(bookmark string) (*Assignment, error) {
	base := filepath.Join(a.opts.Home, a.opts.Kind+"."+bookmark+".rclone")
	for i := 0; i < MaxAttempts; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d", base, i)
		}
		if a.claimed[candidate] {
			continue
		}
		if !usable(candidate) {
			continue
		}
		// Mkdir fails if another process created the directory since the check.
		if err := os.Mkdir(candidate, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create mountpoint: %w", err)
		}
		if !isEmptyDir(candidate) {
			continue
		}
		a.claimed[candidate] = true
		a.log.WithField("bookmark", bookmark).Debugf("allocated %s", candidate)
		return a.assignment(bookmark, candidate, func() error { return removeIfEmpty(candidate) }), nil
	}
	return nil, fmt.Errorf("%w for %s after %d attempts", ErrNoFreeMountpoint, bookmark, MaxAttempts)
}

func (a *Allocator) allocateLetterLocked(bookmark string) (*Assignment, error) {
	used, err := a.opts.UsedDrives()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate drives: %w", err)
	}
	letter, ok := freeLetter(used, a.claimed)
	if !ok {
		return nil, ErrNoFreeLetter
	}
	path := letter + ":"
	a.claimed[path] = true
	a.log.WithField("bookmark", bookmark).Debugf("allocated drive %s", path)
	return a.assignment(bookmark, path, nil), nil
}

func (a *Allocator) assignment(bookmark, path string, cleanup func() error) *Assignment {
	return &Assignment{
		Bookmark: bookmark,
		Path:     path,
		release: func() error {
			var err error
			if cleanup != nil {
				err = cleanup()
			}
			a.mu.Lock()
			delete(a.claimed, path)
			a.mu.Unlock()
			return err
		},
	}
}

// usable: missing, or an existing empty directory.
func usable(path string) bool {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	if err != nil || !info.IsDir() {
		return false
	}
	return isEmptyDir(path)
}

func isEmptyDir(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	return errors.Is(err, io.EOF)
}

func removeIfEmpty(path string) error {
	if !isEmptyDir(path) {
		return nil
	}
	// os.Remove refuses non-empty directories, so a file created since the
	// check is never deleted.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
