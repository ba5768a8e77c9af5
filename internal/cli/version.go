package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/rclonetray/rclonetray/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Aliases: []string{"v"},
	Short:   "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s %s\n",
			styleBrand.Render("rclonetray"),
			styleVersion.Render(buildinfo.Version),
			styleHint.Render("("+buildinfo.Codename+")"))
		fmt.Printf("  %s %s\n", label("Commit: "), buildinfo.CommitHash)
		fmt.Printf("  %s %s\n", label("Built:  "), buildinfo.BuildDate)
		fmt.Printf("  %s %s/%s\n", label("OS/Arch:"), runtime.GOOS, runtime.GOARCH)
		fmt.Printf("  %s %s\n", label("Go:     "), runtime.Version())
	},
}
