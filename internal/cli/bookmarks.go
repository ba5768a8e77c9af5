package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rclonetray/rclonetray/internal/daemon/server"
)

var bookmarksCmd = &cobra.Command{
	Use:     "bookmarks",
	Aliases: []string{"ls", "list"},
	Short:   "List bookmarks and what is running for them",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
		defer cancel()
		return withDaemon(ctx, func(ctx context.Context, c *server.Client) error {
			list, err := c.ListBookmarks(ctx)
			if err != nil {
				return err
			}
			fmt.Print(renderBookmarks(list))
			return nil
		})
	},
}

var (
	nameColumn = lipgloss.NewStyle().Width(20)
	typeColumn = lipgloss.NewStyle().Width(12)
)

func renderBookmarks(list *server.BookmarkList) string {
	if len(list.Bookmarks) == 0 {
		return styleHint.Render("No bookmarks. Create one with `rclonetray bookmarks create`.") + "\n"
	}
	var b strings.Builder
	for _, bm := range list.Bookmarks {
		b.WriteString(nameColumn.Render(styleValue.Render(bm.Name)))
		b.WriteString(typeColumn.Render(styleHint.Render(bm.Type)))
		b.WriteString(strings.Join(bookmarkBadges(bm), " "))
		b.WriteString("\n")
		if bm.MountPoint != "" {
			fmt.Fprintf(&b, "  %s %s\n", label("mounted at"), bm.MountPoint)
		}
		for _, sv := range bm.Serves {
			fmt.Fprintf(&b, "  %s %s %s\n", label("serving"), sv.Protocol, sv.Addr)
		}
	}
	if list.Stale {
		b.WriteString(styleWarning.Render("rclone did not answer; showing the last known list.") + "\n")
	}
	return b.String()
}

func bookmarkBadges(bm *server.Bookmark) []string {
	var badges []string
	if bm.Mounted {
		badges = append(badges, badgeMounted.Render("mounted"))
	}
	if bm.Pushing {
		badges = append(badges, badgeSync.Render("uploading"))
	}
	if bm.Pulling {
		badges = append(badges, badgeSync.Render("downloading"))
	}
	if bm.Autopush {
		badges = append(badges, badgeSync.Render("autopush"))
	}
	for _, sv := range bm.Serves {
		badges = append(badges, badgeServe.Render(sv.Protocol))
	}
	if len(badges) == 0 {
		badges = append(badges, badgeIdle.Render("idle"))
	}
	return badges
}
