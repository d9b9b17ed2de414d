package main

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/pregen/pkg/pregen/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage pregen configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/pregen/config.yaml (if set)
  2. ~/.config/pregen/config.yaml

Environment variables override config file settings using the PREGEN_ prefix:
  PREGEN_GENERATE_SCALE=400
  PREGEN_STORAGE_LOCAL_ROOT=/srv/media

The S3 settings also honour S3_ENDPOINT, S3_BUCKET, S3_PREFIX,
S3_ACCESS_KEY, S3_SECRET_KEY and S3_REGION.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration from all sources. Secrets are masked.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in $VISUAL, $EDITOR or vi.

If the config file doesn't exist, a default one is created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// secretKeys are masked by config show.
var secretKeys = map[string]bool{
	"access_key": true,
	"secret_key": true,
}

// maskSecrets replaces non-empty secret values in a nested settings map.
func maskSecrets(settings map[string]interface{}) {
	for k, v := range settings {
		switch val := v.(type) {
		case map[string]interface{}:
			maskSecrets(val)
		case string:
			if secretKeys[k] && val != "" {
				settings[k] = "********"
			}
		}
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if file := viper.ConfigFileUsed(); file != "" {
		if _, err := os.Stat(file); err == nil {
			fmt.Fprintf(out, "Config file: %s\n\n", file)
		} else {
			fmt.Fprintln(out, "Config file: (using defaults, no file found)")
			fmt.Fprintln(out)
		}
	} else {
		fmt.Fprintln(out, "Config file: (using defaults, no file found)")
		fmt.Fprintln(out)
	}

	settings := viper.AllSettings()
	maskSecrets(settings)
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	fmt.Fprintln(out, "Current Configuration:")
	fmt.Fprintln(out, "----------------------")
	fmt.Fprint(out, string(data))

	fmt.Fprintln(out, "\nEnvironment Overrides:")
	fmt.Fprintln(out, "----------------------")
	overrides := environmentOverrides(os.Environ())
	if len(overrides) == 0 {
		fmt.Fprintln(out, "(none)")
	}
	for _, o := range overrides {
		fmt.Fprintln(out, o)
	}
	return nil
}

// environmentOverrides lists the PREGEN_ and S3_ variables in env with
// secrets masked.
func environmentOverrides(env []string) []string {
	var out []string
	for _, kv := range env {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		if !strings.HasPrefix(name, "PREGEN_") && !strings.HasPrefix(name, "S3_") {
			continue
		}
		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, "access_key") || strings.HasSuffix(lower, "secret_key") {
			value = "********"
		}
		out = append(out, name+"="+value)
	}
	sort.Strings(out)
	return out
}

func runConfigEdit(cmd *cobra.Command, _ []string) error {
	path, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}
	logger.Debug("opening config", "path", path, "editor", editor)

	editorCmd := exec.CommandContext(commandContext(cmd), editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Config file already exists: %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "Use 'pregen config edit' to modify it.")
		return nil
	}

	path, err = config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created default config file: %s\n", path)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	path, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
