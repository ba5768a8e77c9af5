package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rclonetray/rclonetray/internal/daemon/server"
)

var providersVerbose bool

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the storage providers a bookmark can use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
		defer cancel()
		return withDaemon(ctx, func(ctx context.Context, c *server.Client) error {
			list, err := c.ListProviders(ctx)
			if err != nil {
				return err
			}
			fmt.Print(renderProviders(list, providersVerbose))
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <bookmark>",
	Short: "Show a bookmark's rclone configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
		defer cancel()
		return withDaemon(ctx, func(ctx context.Context, c *server.Client) error {
			cfg, err := c.GetBookmark(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Print(renderBookmarkConfig(cfg))
			return nil
		})
	},
}

var createCmd = &cobra.Command{
	Use:   "create <bookmark> <provider> [key=value...]",
	Short: "Create a bookmark in the rclone config",
	Long: `Create a bookmark in the rclone config without prompting.

Parameters are passed as key=value pairs, e.g.
  rclonetray bookmarks create photos s3 provider=AWS region=eu-west-1
Passwords are obscured by rclone before they are stored.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(args[2:])
		if err != nil {
			return err
		}
		req := &server.BookmarkConfigRequest{Name: args[0], Provider: args[1], Params: params}
		ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
		defer cancel()
		return withDaemon(ctx, func(ctx context.Context, c *server.Client) error {
			if err := c.CreateBookmark(ctx, req); err != nil {
				return err
			}
			fmt.Printf("%s Created %s (%s)\n", styleSuccess.Render("✓"), args[0], args[1])
			return nil
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <bookmark> key=value...",
	Short: "Change parameters of a bookmark",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(args[1:])
		if err != nil {
			return err
		}
		req := &server.BookmarkConfigRequest{Name: args[0], Params: params}
		ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
		defer cancel()
		return withDaemon(ctx, func(ctx context.Context, c *server.Client) error {
			if err := c.UpdateBookmark(ctx, req); err != nil {
				return err
			}
			fmt.Printf("%s Updated %s\n", styleSuccess.Render("✓"), args[0])
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <bookmark>",
	Aliases: []string{"rm"},
	Short:   "Remove a bookmark from the rclone config",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
		defer cancel()
		return withDaemon(ctx, func(ctx context.Context, c *server.Client) error {
			if err := c.DeleteBookmark(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s Deleted %s\n", styleSuccess.Render("✓"), args[0])
			return nil
		})
	},
}

func init() {
	providersCmd.Flags().BoolVarP(&providersVerbose, "verbose", "v", false, "Show each provider's options")
	bookmarksCmd.AddCommand(providersCmd, showCmd, createCmd, updateCmd, deleteCmd)
}

// parseParams turns key=value arguments into a parameter map.
func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}
		params[key] = value
	}
	return params, nil
}

var prefixColumn = lipgloss.NewStyle().Width(16)

func renderProviders(list *server.ProviderList, verbose bool) string {
	var b strings.Builder
	for _, p := range list.Providers {
		b.WriteString(prefixColumn.Render(styleValue.Render(p.Prefix)))
		b.WriteString(styleHint.Render(p.Description))
		b.WriteString("\n")
		if !verbose {
			continue
		}
		for _, o := range p.Options {
			if o.Advanced {
				continue
			}
			name := o.Name
			if o.Required {
				name += "*"
			}
			help, _, _ := strings.Cut(o.Help, "\n")
			fmt.Fprintf(&b, "  %s %s\n", label(name), help)
		}
	}
	return b.String()
}

// secretKeys mark parameters whose values are not printed.
var secretKeys = []string{"pass", "secret", "token", "key"}

func isSecret(key string) bool {
	key = strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func renderBookmarkConfig(cfg *server.BookmarkConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", styleValue.Render(cfg.Name), styleHint.Render("["+cfg.Type+"]"))
	keys := make([]string, 0, len(cfg.Params))
	for k := range cfg.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := cfg.Params[k]
		if isSecret(k) && v != "" {
			v = "********"
		}
		fmt.Fprintf(&b, "  %s %s\n", label(k), v)
	}
	return b.String()
}
