// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ckpt

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Run validates the inputs, removes stale artifacts and downloads rawURL
// into cfg.DownloadPath.
//
// Token, URL and path checks all run before the first failure is reported,
// so the returned error can carry several ValidationErrors (see
// Descriptions). The path is only probed once those checks pass. Nothing is
// deleted or fetched until every check has passed.
func Run(ctx context.Context, rawURL string, cfg Settings, progress ProgressFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.withDefaults()
	log := cfg.Logger
	emit := emitter(progress)

	var v Validations

	if cfg.Token == "" {
		v.Add(tokenIsNotSet(cfg.TokenEnv))
	}
	source, ok := ParseSourceURL(rawURL)
	if !ok {
		v.Add(ErrBadInput)
	}
	if cfg.DownloadPath == "" {
		v.Add(pathNotSpecified(cfg.PathEnv))
	}
	if err := v.Err(); err != nil {
		return err
	}

	if !ValidatePath(cfg.Fs, cfg.DownloadPath, &v) {
		return v.Err()
	}

	req := NewTransferRequest(source, cfg.Token, filepath.Clean(cfg.DownloadPath), cfg.Filename)
	dst, err := req.Destination()
	if err != nil {
		return errors.Wrap(err, "resolve destination")
	}
	emit(ProgressEvent{Event: EventDestination, Path: req.Dir()})

	switch _, osFs := cfg.Fs.(*afero.OsFs); {
	case cfg.Lock && osFs:
		unlock, err := lockDir(dst)
		if err != nil {
			return err
		}
		defer unlock()
	case cfg.Lock:
		log.WithField("dir", req.Dir()).Debug("lock requested on a non-OS filesystem; skipped")
	default:
		log.WithField("dir", req.Dir()).Debug("no directory lock held; concurrent runs into this directory are not detected")
	}

	if n, err := Clean(cfg.Fs, req.Dir(), cfg.Extension, log, progress); err != nil {
		log.WithError(err).Warn("cleanup skipped")
	} else {
		log.WithField("removed", n).Debug("cleanup finished")
	}

	log.WithFields(logrus.Fields{"url": req.RedactedURL(), "file": dst}).Info("starting transfer")
	_, err = NewEngine(cfg).Transfer(ctx, req.RequestURL(), dst, progress)
	return err
}

// lockDir takes an exclusive lock next to dst. It fails with ErrLocked
// instead of waiting when another process holds it. The lock file is removed
// while the lock is still held, then released.
func lockDir(dst string) (func(), error) {
	fl := flock.New(dst + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "acquire lock")
	}
	if !locked {
		return nil, errors.WithStack(ErrLocked)
	}
	return func() {
		_ = os.Remove(fl.Path())
		_ = fl.Unlock()
	}, nil
}
