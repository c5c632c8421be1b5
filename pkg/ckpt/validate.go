// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ckpt

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ValidatePath checks that path names a usable destination directory,
// creating it when missing. On failure it records exactly one
// PathSpecifiedIncorrectly in v and returns false.
func ValidatePath(fsys afero.Fs, path string, v *Validations) bool {
	if err := checkWritableDir(fsys, path); err != nil {
		v.Add(ErrPathSpecifiedIncorrectly)
		return false
	}
	return true
}

func checkWritableDir(fsys afero.Fs, path string) error {
	if strings.ContainsAny(path, invalidPathChars()) {
		return os.ErrInvalid
	}
	dir := filepath.Clean(path)
	if path == "" || dir == "." || !filepath.IsAbs(dir) {
		return os.ErrInvalid
	}

	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	probe := filepath.Join(dir, ".ckptdl-probe-"+uuid.NewString()+".tmp")
	f, err := fsys.OpenFile(probe, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer fsys.Remove(probe)
	return f.Close()
}

// invalidPathChars lists characters the host filesystem rejects in paths.
func invalidPathChars() string {
	if runtime.GOOS == "windows" {
		var b strings.Builder
		b.WriteString("<>\"|?*")
		for c := rune(0); c < 32; c++ {
			b.WriteRune(c)
		}
		return b.String()
	}
	return "\x00"
}
