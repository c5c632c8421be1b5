// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// newLogger builds the diagnostic logger from the global flags. Logs go to
// errOut and, with --log-file, to that file as well. The returned func
// closes the log file.
func newLogger(ro *RootOpts, errOut io.Writer) (*logrus.Logger, func(), error) {
	level := ro.LogLevel
	switch {
	case ro.Verbose:
		level = "debug"
	case ro.Quiet:
		level = "error"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", ro.LogLevel, err)
	}

	l := logrus.New()
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	closeFn := func() {}
	out := errOut
	if ro.LogFile != "" {
		f, err := os.OpenFile(ro.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(errOut, f)
		closeFn = func() { _ = f.Close() }
	}
	l.SetOutput(out)
	return l, closeFn, nil
}
