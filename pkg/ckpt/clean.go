// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ckpt

import (
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Clean removes files in dir whose name ends with ext and returns how
// many were removed. A file that cannot be removed is logged, reported as a
// "delete_error" event and skipped. Subdirectories are left alone.
func Clean(fsys afero.Fs, dir, ext string, log logrus.FieldLogger, progress ProgressFunc) (int, error) {
	emit := emitter(progress)
	if log == nil {
		log = discardLogger()
	}

	g, err := glob.Compile("*" + glob.QuoteMeta(ext))
	if err != nil {
		return 0, errors.Wrapf(err, "compile pattern for %q", ext)
	}

	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return 0, errors.Wrapf(err, "list %s", dir)
	}

	removed := 0
	for _, fi := range entries {
		if fi.IsDir() || !g.Match(fi.Name()) {
			continue
		}
		p := filepath.Join(dir, fi.Name())
		if err := fsys.Remove(p); err != nil {
			log.WithFields(logrus.Fields{"file": p, "error": err}).Warn("could not remove stale artifact")
			emit(ProgressEvent{Level: "warn", Event: EventDeleteError, Path: p, Message: err.Error()})
			continue
		}
		removed++
		log.WithField("file", p).Debug("removed stale artifact")
		emit(ProgressEvent{Event: EventDeleted, Path: p})
	}
	return removed, nil
}
