package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/pregen/pkg/pregen/config"
	"github.com/jamesainslie/pregen/pkg/pregen/logging"
)

var logger = logging.Get("cli")

// Exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitInterrupt = 130
)

var (
	cfgFile   string
	verbose   bool
	quiet     bool
	configErr error

	rootCmd = &cobra.Command{
		Use:   "pregen",
		Short: "Pre-generate image thumbnails",
		Long: `Pregen creates missing thumbnails for originals in an S3 bucket or a
local mirror of one, in two phases:

  1. scan      list originals and existing thumbnails into a manifest
  2. generate  create the thumbnails the manifest says are missing

Reports over a manifest are read-only and never touch storage.

Examples:
  pregen scan -o manifest.json
  pregen report -m manifest.json -t plan -s 400
  pregen generate -m manifest.json -s 400 -c 0.5
  pregen scan --local-root /srv/media --collection botany`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  initializeLogging,
		PersistentPostRunE: closeLogging,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/pregen/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "minimal output")
}

// initConfig prepares the global viper instance. Errors surface from
// initializeLogging so they map to an exit code.
func initConfig() {
	configErr = config.Setup(viper.GetViper(), cfgFile)
}

// loadConfig decodes the global viper instance, flags included.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return nil, &exitError{code: exitFailure, err: err}
	}
	return cfg, nil
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitCode prints err and maps it to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			printError("%v", ee.err)
		}
		return ee.code
	}
	printError("%v", err)
	return exitFailure
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
