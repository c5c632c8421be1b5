// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/bodaay/ckptdl/internal/cli"
	"github.com/bodaay/ckptdl/pkg/ckpt"
)

// Version is set at build time via ldflags
var Version = "1.0.0-dev"

func main() {
	if err := cli.Execute(Version); err != nil {
		os.Exit(ckpt.ExitCode)
	}
}
