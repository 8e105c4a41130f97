package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Overridable at build time:
//
//	go build -ldflags "-X main.version=v1.2.3"
var version = ""

// buildVersion resolves the reported version: the ldflags value when
// set, the module version from build info otherwise, "(devel)" for a
// plain `go build` from a working tree.
func buildVersion() (ver, revision string) {
	ver = version
	info, ok := debug.ReadBuildInfo()
	if !ok {
		if ver == "" {
			ver = "(devel)"
		}
		return ver, ""
	}
	if ver == "" {
		ver = info.Main.Version
	}
	if ver == "" {
		ver = "(devel)"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			revision = s.Value
			if len(revision) > 7 {
				revision = revision[:7]
			}
		}
	}
	return ver, revision
}

func rootVersion() string {
	ver, _ := buildVersion()
	return ver
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			ver, revision := buildVersion()
			if revision != "" {
				ver += " (" + revision + ")"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "breachmon version %s\n", ver)
		},
	}
}
