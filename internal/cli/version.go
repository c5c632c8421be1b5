// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/bodaay/ckptdl/pkg/ckpt"
)

// vcsInfo returns the short commit and commit time stamped by the Go
// toolchain, or "unknown" for each when the binary was built outside a
// repository.
func vcsInfo() (commit, built string) {
	commit, built = "unknown", "unknown"
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, built
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
			if len(commit) > 7 {
				commit = commit[:7]
			}
		case "vcs.time":
			built = s.Value
		}
	}
	return commit, built
}

func newVersionCmd(version string) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version, build and default artifact settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintln(out, version)
				return err
			}

			commit, built := vcsInfo()
			d := ckpt.DefaultSettings()

			table := uitable.New()
			table.AddRow("ckptdl", version)
			table.AddRow("go", runtime.Version())
			table.AddRow("platform", runtime.GOOS+"/"+runtime.GOARCH)
			table.AddRow("commit", commit)
			table.AddRow("built", built)
			table.AddRow("token variable", d.TokenEnv)
			table.AddRow("path variable", d.PathEnv)
			table.AddRow("artifact", d.Filename)
			_, err := fmt.Fprintln(out, table)
			return err
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")
	return cmd
}
