// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bodaay/ckptdl/internal/tui"
	"github.com/bodaay/ckptdl/pkg/ckpt"
)

// httpClient, when set, replaces the library's default download client.
var httpClient *http.Client

// RootOpts holds global CLI options.
type RootOpts struct {
	Token    string
	JSONOut  bool
	Quiet    bool
	Verbose  bool
	Config   string
	LogFile  string
	LogLevel string
}

// Execute runs the CLI with the given version string. A non-nil error has
// already been reported to stderr; the caller only sets the exit code.
func Execute(version string) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()
	return execute(ctx, version, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, version string, args []string, out, errOut io.Writer) error {
	root := newRootCmd(ctx, version, out, errOut)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	if err := root.ExecuteContext(ctx); err != nil {
		tui.ReportErrors(errOut, err)
		return err
	}
	return nil
}

func newRootCmd(ctx context.Context, version string, out, errOut io.Writer) *cobra.Command {
	ro := &RootOpts{}

	root := &cobra.Command{
		Use:           "ckptdl [URL]",
		Short:         "Download a model checkpoint over HTTPS",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	// Global flags
	root.PersistentFlags().StringVarP(&ro.Token, "token", "t", "", "Access token (also reads the token variable, "+ckpt.DefaultTokenEnv+" by default)")
	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON events")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode (no progress line)")
	root.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "Verbose logs (debug details)")
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&ro.LogFile, "log-file", "", "Write logs to file (in addition to stderr)")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "error", "Log level: debug, info, warn, error")

	fetchCmd := newFetchCmd(ctx, ro, out, errOut)
	root.AddCommand(fetchCmd)
	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newConfigCmd(ro))

	// Fetch is the default command when no subcommand is given.
	root.Args = cobra.ArbitraryArgs
	root.RunE = fetchCmd.RunE
	addFetchFlags(root.Flags())
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	return root
}

func newFetchCmd(ctx context.Context, ro *RootOpts, out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Download the checkpoint at URL into the destination directory",
		Long: `Downloads one checkpoint from an https URL.

The access token is read from the token variable (CKPT_TOKEN by default) and
appended to the URL as the "token" query parameter. The destination directory
is read from the download-path variable (CKPT_DOWNLOAD_PATH by default).
Existing files with the artifact extension in that directory are deleted
before the download starts.`,
		// Argument count problems are reported with the other input errors.
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, closeLog, err := newLogger(ro, errOut)
			if err != nil {
				return err
			}
			defer closeLog()

			v, err := loadConfig(cmd.Flags(), ro)
			if err != nil {
				return err
			}
			cfg := settingsFrom(v)
			cfg.Logger = log
			cfg.HTTPClient = httpClient
			if f := v.ConfigFileUsed(); f != "" {
				log.WithField("file", f).Debug("loaded config")
			}

			// Anything but exactly one argument is reported as a bad URL.
			var rawURL string
			if len(args) == 1 {
				rawURL = args[0]
			}

			var progress ckpt.ProgressFunc
			if ro.JSONOut {
				progress = jsonProgress(out)
			} else if ro.Quiet {
				progress = tui.QuietHandler(out)
			} else {
				lr := tui.NewLineRenderer(out)
				defer lr.Close()
				progress = lr.Handler()
			}

			return ckpt.Run(ctx, rawURL, cfg, progress)
		},
	}
	addFetchFlags(cmd.Flags())
	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM. The returned func stops
// signal delivery.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// jsonProgress returns a JSON-lines progress handler.
func jsonProgress(w io.Writer) ckpt.ProgressFunc {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return func(ev ckpt.ProgressEvent) {
		_ = enc.Encode(ev)
	}
}
