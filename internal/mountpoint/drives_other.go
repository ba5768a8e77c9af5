//go:build !windows

package mountpoint

// logicalDrives has no meaning off Windows; every letter is free.
func logicalDrives() (uint32, error) {
	return 0, nil
}
