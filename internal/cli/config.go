// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(ro *RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(ro))
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func defaultConfigPath(useJSON bool) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find home directory: %w", err)
	}
	ext := ".yaml"
	if useJSON {
		ext = ".json"
	}
	return filepath.Join(home, ".config", configBaseName+ext), nil
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		useJSON bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long: `Creates a default configuration file at ~/.config/ckptdl.yaml (or .json)

The configuration file sets default values for the fetch flags.
Environment variables and CLI flags always override config file values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := defaultConfigPath(useJSON)
			if err != nil {
				return err
			}

			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
			}
			if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
				return fmt.Errorf("could not create config directory: %w", err)
			}

			cfg := DefaultConfig()
			var data []byte
			if useJSON {
				data, err = json.MarshalIndent(cfg, "", "  ")
			} else {
				data, err = yaml.Marshal(cfg)
			}
			if err != nil {
				return err
			}

			// The file may later hold a token.
			if err := os.WriteFile(configPath, data, 0o600); err != nil {
				return fmt.Errorf("could not write config file: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created config file: %s\n", configPath)
			fmt.Fprintln(out, "Edit it to rename the token or path variables, or change the artifact name.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config file")
	cmd.Flags().BoolVar(&useJSON, "json", false, "Create JSON config instead of YAML")

	return cmd
}

func newConfigShowCmd(ro *RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadConfig(cmd.Flags(), ro)
			if err != nil {
				return err
			}
			cfg := settingsFrom(v)

			source := v.ConfigFileUsed()
			if source == "" {
				source = "(none)"
			}
			token := "not set"
			if cfg.Token != "" {
				token = "set"
			}
			output := cfg.DownloadPath
			if output == "" {
				output = "not set"
			}

			table := uitable.New()
			table.AddRow("KEY", "VALUE")
			table.AddRow("config file", source)
			table.AddRow(keyTokenEnv, cfg.TokenEnv)
			table.AddRow(keyPathEnv, cfg.PathEnv)
			table.AddRow(keyToken, token)
			table.AddRow(keyOutput, output)
			table.AddRow(keyFilename, cfg.Filename)
			table.AddRow(keyExtension, cfg.Extension)
			table.AddRow(keyBufferSize, cfg.BufferSize)
			table.AddRow(keyLock, cfg.Lock)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
	addFetchFlags(cmd.Flags())
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := discoverConfig()
			if p == "" {
				var err error
				if p, err = defaultConfigPath(false); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}
}
