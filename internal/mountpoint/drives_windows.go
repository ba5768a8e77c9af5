//go:build windows

package mountpoint

import "golang.org/x/sys/windows"

func logicalDrives() (uint32, error) {
	return windows.GetLogicalDrives()
}
