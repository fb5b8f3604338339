package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/alfredjeanlab/livetimeline/internal/config"
	"github.com/spf13/cobra"
)

var settingsFile string

var settingsCmd = &cobra.Command{
	Use:               "settings",
	Short:             "Show or edit queue settings",
	GroupID:           "system",
	PersistentPreRunE: noClient,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveSettingsFile()
		if err != nil {
			return err
		}
		s, err := config.LoadSettings(path)
		if err != nil {
			return err
		}
		red := s.Redacted()
		if jsonOutput {
			return printJSON(os.Stdout, red)
		}
		if err := toml.NewEncoder(os.Stdout).Encode(red); err != nil {
			return fmt.Errorf("encoding settings: %w", err)
		}
		if err := s.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "\nwarning: %v\n", err)
		}
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting and save the file",
	Long: `Change one setting and save the file.

Keys: backend, queue_url, access_key_id, secret_access_key, region, endpoint,
rest_url, rest_token, queue_key, poll_interval.

A running server reconnects with the new settings.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveSettingsFile()
		if err != nil {
			return err
		}
		s, err := readSettingsFile(path)
		if err != nil {
			return err
		}
		if err := s.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.SaveSettings(path, s); err != nil {
			return err
		}
		fmt.Printf("Set %s in %s\n", args[0], path)
		return nil
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveSettingsFile()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	settingsCmd.PersistentFlags().StringVar(&settingsFile, "file", os.Getenv("TIMELINE_SETTINGS_FILE"), "settings file [$TIMELINE_SETTINGS_FILE] (default ~/.local/state/livetimeline/settings.toml)")
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsPathCmd)
}

func resolveSettingsFile() (string, error) {
	if settingsFile != "" {
		return settingsFile, nil
	}
	return config.DefaultSettingsPath()
}

// readSettingsFile reads only the file, without environment overrides, so
// `set` never writes TIMELINE_* values back to disk.
func readSettingsFile(path string) (config.Settings, error) {
	s := config.DefaultSettings()
	if _, err := toml.DecodeFile(path, &s); err != nil && !errors.Is(err, os.ErrNotExist) {
		return s, fmt.Errorf("reading %s: %w", path, err)
	}
	return s, nil
}
