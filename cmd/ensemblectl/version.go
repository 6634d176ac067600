package main

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func versionCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildVersionInfo()
			if jsonOut {
				data, err := json.Marshal(info)
				if err != nil {
					return fmt.Errorf("render version: %w", err)
				}
				fmt.Fprintln(a.stdout, string(data))
				return nil
			}
			fmt.Fprintf(a.stdout, "ensemblectl %s\ncommit: %s\nbuilt_at: %s\n", info.Version, info.Commit, info.BuildTime)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output version metadata as JSON")
	return cmd
}

// buildVersionInfo prefers ldflags values and falls back to the VCS stamp
// the Go toolchain embeds in the binary.
func buildVersionInfo() versionInfo {
	info := versionInfo{Version: strings.TrimSpace(version), Commit: "unknown", BuildTime: "unknown"}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := stamped(gitCommit, "vcs.revision")
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}
	if t, err := time.Parse(time.RFC3339Nano, stamped(buildDate, "vcs.time")); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func stamped(value, setting string) string {
	value = strings.TrimSpace(value)
	if value != "" && value != "unknown" {
		return value
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == setting {
			return strings.TrimSpace(s.Value)
		}
	}
	return ""
}
