// Package version holds build-time version metadata, injected via -ldflags.
package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Overridden at build time via -ldflags "-X ...".
var (
	// Version is the semantic version of this build.
	Version = "0.1.0"
	// Commit is the VCS commit hash of this build.
	Commit = "none"
	// BuildTime is the UTC build timestamp of this build.
	BuildTime = "unknown"
)

// Short returns the bare semantic version.
func Short() string {
	return Version
}

// Full returns version, commit, and build time joined for display.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}

// AttachCobraVersionCommand registers a "version" subcommand on root.
func AttachCobraVersionCommand(root *cobra.Command) {
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(Full())
		},
	})
}
