package cmd

import (
	"fmt"
	"runtime"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// Version is overwritten by release builds:
//
//	go build -ldflags "-X github.com/derickschaefer/pitboss/cmd.Version=v0.4.0"
var Version = "v0.3.0-dev"

// BuildTime is optionally injected alongside Version:
//
//	-ldflags "-X github.com/derickschaefer/pitboss/cmd.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var BuildTime = ""

type versionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	GOOS      string `json:"goos"`
	GOARCH    string `json:"goarch"`
	BuildTime string `json:"build_time,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pitboss version and build information",
	Long: `Print the pitboss version string and build metadata.

Default output is plain text. Use --format json for structured output.`,
	Example: `  pitboss version
  pitboss version --format json | jq .version`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionInfo{
			Version:   Version,
			GoVersion: runtime.Version(),
			GOOS:      runtime.GOOS,
			GOARCH:    runtime.GOARCH,
			BuildTime: BuildTime,
		}
		out := cmd.OutOrStdout()

		switch globalFlags.Format {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		case "jsonl":
			b, err := json.Marshal(info)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", b)
			return nil
		default:
			fmt.Fprintf(out, "pitboss %s\n", info.Version)
			fmt.Fprintf(out, "go      %s\n", info.GoVersion)
			fmt.Fprintf(out, "os      %s/%s\n", info.GOOS, info.GOARCH)
			if info.BuildTime != "" {
				fmt.Fprintf(out, "built   %s\n", info.BuildTime)
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
