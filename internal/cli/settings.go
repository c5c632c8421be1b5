// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bodaay/ckptdl/pkg/ckpt"
)

// Configuration keys. Each is also a flag name and a config file key.
const (
	keyToken      = "token"
	keyOutput     = "output"
	keyTokenEnv   = "token-env"
	keyPathEnv    = "path-env"
	keyFilename   = "filename"
	keyExtension  = "extension"
	keyBufferSize = "buffer-size"
	keyLock       = "lock"
)

// configBaseName is the file name, without extension, looked up in
// ~/.config when --config is not given.
const configBaseName = "ckptdl"

// DefaultConfig returns the default configuration.
func DefaultConfig() map[string]any {
	d := ckpt.DefaultSettings()
	return map[string]any{
		keyTokenEnv:   d.TokenEnv,
		keyPathEnv:    d.PathEnv,
		keyFilename:   d.Filename,
		keyExtension:  d.Extension,
		keyBufferSize: d.BufferSize,
		keyLock:       false,
	}
}

// addFetchFlags registers the flags shared by the root command and fetch.
func addFetchFlags(fs *pflag.FlagSet) {
	d := ckpt.DefaultSettings()
	fs.StringP(keyOutput, "o", "", "Destination directory (overrides the download-path variable)")
	fs.String(keyTokenEnv, d.TokenEnv, "Environment variable holding the access token")
	fs.String(keyPathEnv, d.PathEnv, "Environment variable holding the destination directory")
	fs.String(keyFilename, d.Filename, "Name of the downloaded artifact file")
	fs.String(keyExtension, d.Extension, "Extension of stale artifacts removed before downloading")
	fs.Int(keyBufferSize, d.BufferSize, "Copy buffer size in bytes")
	fs.Bool(keyLock, false, "Fail instead of writing when another run holds the destination lock")
}

// loadConfig layers defaults, the config file, environment and flags into a
// viper instance. Precedence: flag > environment > config file > default.
func loadConfig(fs *pflag.FlagSet, ro *RootOpts) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range DefaultConfig() {
		v.SetDefault(k, val)
	}

	path := ro.Config
	if path == "" {
		path = discoverConfig()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}

	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	// Variable names may themselves come from flags or the config file, so
	// the env bindings are resolved last.
	if err := v.BindEnv(keyToken, v.GetString(keyTokenEnv)); err != nil {
		return nil, err
	}
	if err := v.BindEnv(keyOutput, v.GetString(keyPathEnv)); err != nil {
		return nil, err
	}
	return v, nil
}

// settingsFrom converts a loaded configuration into library settings.
func settingsFrom(v *viper.Viper) ckpt.Settings {
	return ckpt.Settings{
		Token:        v.GetString(keyToken),
		DownloadPath: v.GetString(keyOutput),
		TokenEnv:     v.GetString(keyTokenEnv),
		PathEnv:      v.GetString(keyPathEnv),
		Filename:     v.GetString(keyFilename),
		Extension:    v.GetString(keyExtension),
		BufferSize:   v.GetInt(keyBufferSize),
		Lock:         v.GetBool(keyLock),
	}
}

// discoverConfig returns the first existing ~/.config/ckptdl.{yaml,yml,json}.
func discoverConfig() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		p := filepath.Join(home, ".config", configBaseName+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
