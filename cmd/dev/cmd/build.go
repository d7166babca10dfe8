package cmd

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gophertribe/devtool/build"
)

// target is a host the cli is deployed to next to the memory.
type target struct {
	os, arch string
}

var targets = map[string]target{
	"nanopi-neo": {"linux", "arm"},
	"rpi":        {"linux", "arm64"},
	"host":       {runtime.GOOS, runtime.GOARCH},
}

func targetNames() string {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the eeprom cli",
		Long: `Build the eeprom cli for the host or for one of the boards it is deployed to.

karalabe/hid needs cgo, so cross builds for a board run inside a docker builder
image that re-invokes this tool with --cross-os/--cross-arch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := cmd.Flag("target").Value.String()
			t, ok := targets[name]
			if !ok {
				return fmt.Errorf("unknown target %q (known: %s)", name, targetNames())
			}
			version := cmd.Flag("version").Value.String()
			crossOs := cmd.Flag("cross-os").Value.String()
			crossArch := cmd.Flag("cross-arch").Value.String()

			if t.os == runtime.GOOS && t.arch == runtime.GOARCH {
				if crossOs != "" && crossArch != "" {
					t = target{crossOs, crossArch}
				}
				return build.GoBuild(fmt.Sprintf("dist/eeprom-%s-%s", t.os, t.arch), "./cmd/eeprom", build.GoBuildOpts{
					Version:       version,
					InjectVersion: true,
					ConfigPackage: "main",
					EnableCgo:     true,
					Arch:          t.arch,
					OS:            t.os,
				})
			}

			noCache, err := cmd.Flags().GetBool("no-cache")
			if err != nil {
				return fmt.Errorf("could not get no-cache flag: %w", err)
			}
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", t.os, t.arch), []string{"build", "--version", version, "--cross-os", t.os, "--cross-arch", t.arch}, build.DockerBuildOpts{
				NoCache: noCache,
				Image:   "gophertribe/gobuild:1.25-bookworm",
			})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building the app")
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().String("target", "host", "where the cli runs: "+targetNames())
	cmd.Flags().String("cross-os", "", "os to cross-compile for")
	cmd.Flags().String("cross-arch", "", "arch to cross-compile for")

	return cmd
}
