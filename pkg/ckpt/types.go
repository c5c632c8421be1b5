// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package ckpt

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Defaults used when the corresponding Settings field is empty.
const (
	DefaultTokenEnv   = "CKPT_TOKEN"
	DefaultPathEnv    = "CKPT_DOWNLOAD_PATH"
	DefaultFilename   = "checkpoint.safetensors"
	DefaultExtension  = ".safetensors"
	DefaultBufferSize = 81920
)

// Settings configures a single run.
//
// Token and DownloadPath are the raw values read from the environment (or
// flags); an empty string means the value was not provided, and Run records
// the matching validation error.
type Settings struct {
	// Token authenticates the request. Sent as the "token" query parameter.
	Token string

	// DownloadPath is the absolute destination directory.
	DownloadPath string

	// TokenEnv and PathEnv are the variable names mentioned in error
	// descriptions. If empty, DefaultTokenEnv and DefaultPathEnv.
	TokenEnv string
	PathEnv  string

	// Filename is the artifact file written inside DownloadPath.
	// If empty, DefaultFilename.
	Filename string

	// Extension selects stale artifacts removed before the transfer.
	// If empty, DefaultExtension.
	Extension string

	// BufferSize is the size of the reusable copy buffer.
	// If <= 0, DefaultBufferSize.
	BufferSize int

	// Lock serializes runs targeting the same directory through a lock file
	// next to the artifact. It applies only when Fs is the OS filesystem.
	Lock bool

	// HTTPClient overrides the default client. Useful for tests and proxies.
	HTTPClient *http.Client

	// Fs is the filesystem used for validation, cleanup and writing.
	// If nil, the OS filesystem.
	Fs afero.Fs

	// Logger receives diagnostic logs. If nil, logs are discarded.
	Logger logrus.FieldLogger
}

// DefaultSettings returns Settings with the defaults filled in.
func DefaultSettings() Settings {
	return Settings{
		TokenEnv:   DefaultTokenEnv,
		PathEnv:    DefaultPathEnv,
		Filename:   DefaultFilename,
		Extension:  DefaultExtension,
		BufferSize: DefaultBufferSize,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.TokenEnv == "" {
		s.TokenEnv = d.TokenEnv
	}
	if s.PathEnv == "" {
		s.PathEnv = d.PathEnv
	}
	if s.Filename == "" {
		s.Filename = d.Filename
	}
	if s.Extension == "" {
		s.Extension = d.Extension
	}
	if s.BufferSize <= 0 {
		s.BufferSize = d.BufferSize
	}
	if s.Fs == nil {
		s.Fs = afero.NewOsFs()
	}
	if s.Logger == nil {
		s.Logger = discardLogger()
	}
	return s
}

// Progress is the running state of a transfer.
type Progress struct {
	Transferred int64
	Total       int64
}

// Percent returns Transferred / Total * 100, or 0 when Total is unknown.
// An empty artifact that has been fully transferred is 100%.
func (p Progress) Percent() float64 {
	if p.Total == 0 && p.Transferred == 0 {
		return 100
	}
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Transferred) / float64(p.Total) * 100
}

// String renders the progress as "12.34% (1.00/8.00 Gb)".
func (p Progress) String() string {
	return fmt.Sprintf("%.2f%% (%.2f/%.2f Gb)", p.Percent(), ToGB(p.Transferred), ToGB(p.Total))
}

// ToGB converts bytes to binary gigabytes (1024³).
func ToGB(n int64) float64 {
	return float64(n) / 1024 / 1024 / 1024
}

// Event types emitted through ProgressFunc.
const (
	EventDestination = "destination"
	EventDeleted     = "deleted"
	EventDeleteError = "delete_error"
	EventFileStart   = "file_start"
	EventProgress    = "file_progress"
	EventDone        = "done"
)

// ProgressEvent is a notification emitted during a run.
//
//   - "destination": the validated destination directory (Path)
//   - "deleted": a stale artifact was removed (Path)
//   - "delete_error": a stale artifact could not be removed (Path, Message)
//   - "file_start": the response was accepted; Total is the declared length
//   - "file_progress": one chunk was written; Downloaded is cumulative
//   - "done": the artifact is complete
type ProgressEvent struct {
	Time       time.Time `json:"time"`
	Level      string    `json:"level,omitempty"`
	Event      string    `json:"event"`
	Path       string    `json:"path,omitempty"`
	Downloaded int64     `json:"downloaded,omitempty"`
	Total      int64     `json:"total,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Progress returns the transfer state carried by the event.
func (e ProgressEvent) Progress() Progress {
	return Progress{Transferred: e.Downloaded, Total: e.Total}
}

// ProgressFunc receives events. It is called from the goroutine running the
// transfer, one event at a time.
type ProgressFunc func(ProgressEvent)

func emitter(progress ProgressFunc) ProgressFunc {
	return func(ev ProgressEvent) {
		if progress == nil {
			return
		}
		if ev.Time.IsZero() {
			ev.Time = time.Now().UTC()
		}
		progress(ev)
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}
