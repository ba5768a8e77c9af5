package tray

import (
	"fmt"
	"strings"

	"github.com/rclonetray/rclonetray/internal/daemon/bookmark"
)

func formatStatus(connected bool, port int) string {
	if !connected {
		return "rclone is not running"
	}
	return fmt.Sprintf("rclone connected (control port %d)", port)
}

func formatTooltip(connected bool, states []bookmark.State) string {
	if !connected {
		return "rclonetray: rclone is not running"
	}
	busy := 0
	for _, st := range states {
		if st.Busy() {
			busy++
		}
	}
	return fmt.Sprintf("rclonetray: %d bookmarks, %d active", len(states), busy)
}

func formatBookmarkTitle(st bookmark.State) string {
	var flags []string
	if st.Mounted {
		flags = append(flags, "mounted")
	}
	switch {
	case st.Pushing:
		flags = append(flags, "uploading")
	case st.Pulling:
		flags = append(flags, "downloading")
	}
	if st.Autopush {
		flags = append(flags, "auto upload")
	}
	for _, sv := range st.Serves {
		flags = append(flags, sv.Protocol)
	}

	title := st.Name
	if st.Type != "" {
		title += " [" + st.Type + "]"
	}
	if len(flags) == 0 {
		return "○ " + title
	}
	return "● " + title + " (" + strings.Join(flags, ", ") + ")"
}
