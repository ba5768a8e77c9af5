package mountpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclonetray/rclonetray/internal/logging"
)

func newPosix(t *testing.T) (*Allocator, string) {
	t.Helper()
	home := t.TempDir()
	a, err := New(Options{Home: home, Log: logging.Discard()})
	require.NoError(t, err)
	return a, home
}

func TestAllocateTwiceYieldsDistinctPaths(t *testing.T) {
	a, home := newPosix(t)

	first, err := a.Allocate("b1")
	require.NoError(t, err)
	second, err := a.Allocate("b1")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "volume.b1.rclone"), first.Path)
	assert.Equal(t, filepath.Join(home, "volume.b1.rclone_1"), second.Path)
	assert.DirExists(t, first.Path)
	assert.DirExists(t, second.Path)
}

func TestAllocateSkipsNonEmptyDirectory(t *testing.T) {
	a, home := newPosix(t)
	busy := filepath.Join(home, "volume.b1.rclone")
	require.NoError(t, os.MkdirAll(busy, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(busy, "keep.txt"), []byte("x"), 0o644))

	got, err := a.Allocate("b1")
	require.NoError(t, err)
	assert.Equal(t, busy+"_1", got.Path)
}

func TestAllocateReusesEmptyDirectory(t *testing.T) {
	a, home := newPosix(t)
	empty := filepath.Join(home, "volume.b1.rclone")
	require.NoError(t, os.MkdirAll(empty, 0o755))

	got, err := a.Allocate("b1")
	require.NoError(t, err)
	assert.Equal(t, empty, got.Path)
}

func TestAllocateSkipsFile(t *testing.T) {
	a, home := newPosix(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "volume.b1.rclone"), nil, 0o644))

	got, err := a.Allocate("b1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "volume.b1.rclone_1"), got.Path)
}

func TestReleaseRemovesOnlyEmptyDirectory(t *testing.T) {
	a, _ := newPosix(t)

	empty, err := a.Allocate("b1")
	require.NoError(t, err)
	require.NoError(t, empty.Release())
	assert.NoDirExists(t, empty.Path)
	assert.Empty(t, a.claimed)

	full, err := a.Allocate("b2")
	require.NoError(t, err)
	data := filepath.Join(full.Path, "data.bin")
	require.NoError(t, os.WriteFile(data, []byte("user data"), 0o644))
	require.NoError(t, full.Release())
	assert.FileExists(t, data)

	// Releasing twice, or after the directory vanished, is fine.
	require.NoError(t, full.Release())
	require.NoError(t, empty.Release())
}

func TestReleaseFreesName(t *testing.T) {
	a, home := newPosix(t)
	first, err := a.Allocate("b1")
	require.NoError(t, err)
	require.NoError(t, first.Release())

	again, err := a.Allocate("b1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "volume.b1.rclone"), again.Path)
}

func TestAllocateBounded(t *testing.T) {
	a, home := newPosix(t)
	for i := 0; i < MaxAttempts; i++ {
		p := filepath.Join(home, "volume.b1.rclone")
		if i > 0 {
			p = fmt.Sprintf("%s_%d", p, i)
		}
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}
	_, err := a.Allocate("b1")
	assert.ErrorIs(t, err, ErrNoFreeMountpoint)
}

func TestAllocateRejectsBadName(t *testing.T) {
	a, _ := newPosix(t)
	_, err := a.Allocate("../etc")
	assert.ErrorIs(t, err, ErrInvalidBookmark)
	_, err = a.Allocate("")
	assert.ErrorIs(t, err, ErrInvalidBookmark)
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"", "a/b", `a\b`, "drive:", " docs", "docs "} {
		assert.ErrorIs(t, ValidateName(name), ErrInvalidBookmark, "%q", name)
	}
	for _, name := range []string{"docs", "my-drive_2", "Photos 2024"} {
		assert.NoError(t, ValidateName(name), "%q", name)
	}
}

func TestConcurrentAllocations(t *testing.T) {
	a, _ := newPosix(t)
	const n = 20

	var wg sync.WaitGroup
	paths := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := a.Allocate(fmt.Sprintf("b%d", i%4))
			if assert.NoError(t, err) {
				paths <- got.Path
			}
		}(i)
	}
	wg.Wait()
	close(paths)

	seen := map[string]bool{}
	for p := range paths {
		assert.False(t, seen[p], "duplicate %s", p)
		seen[p] = true
	}
	assert.Len(t, seen, n)
}

func TestCustomKind(t *testing.T) {
	home := t.TempDir()
	a, err := New(Options{Home: home, Kind: "mount", Log: logging.Discard()})
	require.NoError(t, err)
	got, err := a.Allocate("b1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "mount.b1.rclone"), got.Path)
}

func windowsAllocator(t *testing.T, used uint32, err error) *Allocator {
	t.Helper()
	a, newErr := New(Options{
		Windows:    true,
		UsedDrives: func() (uint32, error) { return used, err },
		Log:        logging.Discard(),
	})
	require.NoError(t, newErr)
	return a
}

func bit(letter byte) uint32 { return 1 << (letter - 'A') }

func TestDriveLetterAllocation(t *testing.T) {
	a := windowsAllocator(t, bit('C')|bit('Z'), nil)

	first, err := a.Allocate("b1")
	require.NoError(t, err)
	assert.Equal(t, "Y:", first.Path)

	second, err := a.Allocate("b2")
	require.NoError(t, err)
	assert.Equal(t, "X:", second.Path)

	require.NoError(t, first.Release())
	third, err := a.Allocate("b3")
	require.NoError(t, err)
	assert.Equal(t, "Y:", third.Path)
}

func TestNoFreeLetter(t *testing.T) {
	var used uint32
	for l := byte('D'); l <= 'Z'; l++ {
		used |= bit(l)
	}
	a := windowsAllocator(t, used, nil)
	_, err := a.Allocate("b1")
	assert.ErrorIs(t, err, ErrNoFreeLetter)
}

func TestReservedLettersNeverUsed(t *testing.T) {
	a := windowsAllocator(t, 0, nil)
	seen := map[string]bool{}
	for {
		got, err := a.Allocate("b")
		if errors.Is(err, ErrNoFreeLetter) {
			break
		}
		require.NoError(t, err)
		seen[got.Path] = true
	}
	assert.Len(t, seen, len(letterPool))
	for _, reserved := range []string{"A:", "B:", "C:"} {
		assert.False(t, seen[reserved])
	}
}

func TestDriveEnumerationError(t *testing.T) {
	a := windowsAllocator(t, 0, errors.New("access denied"))
	_, err := a.Allocate("b1")
	assert.ErrorContains(t, err, "access denied")
}
