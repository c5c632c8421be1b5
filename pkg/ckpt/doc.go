// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

/*
Package ckpt downloads a single model checkpoint from an HTTPS endpoint into a
local directory.

# Quick Start

	cfg := ckpt.DefaultSettings()
	cfg.Token = os.Getenv(ckpt.DefaultTokenEnv)
	cfg.DownloadPath = os.Getenv(ckpt.DefaultPathEnv)

	err := ckpt.Run(ctx, "https://example.com/ckpt", cfg, func(e ckpt.ProgressEvent) {
		if e.Event == ckpt.EventProgress {
			fmt.Printf("\rProgress: %s", e.Progress())
		}
	})
	if err != nil {
		for _, line := range ckpt.Descriptions(err) {
			fmt.Println(line)
		}
		os.Exit(ckpt.ExitCode)
	}

# Pipeline

Run performs, in order:

  - Input checks: token present, URL absolute with the https scheme, download
    path present. All three run; failures are reported together.
  - Path check: the directory is created if needed and probed for writability.
  - Cleanup: files with the artifact extension are removed from the directory.
  - Transfer: one GET to the URL with a "token" query parameter, streamed to
    <dir>/<filename> through a fixed-size buffer.

A response without a declared Content-Length is rejected before the
destination file is opened. Any other failure stops the run; a partially
written file is left on disk.

# Concurrency

Two runs writing into the same directory are not detected unless
Settings.Lock is set, in which case the second run fails with ErrLocked.
*/
package ckpt
