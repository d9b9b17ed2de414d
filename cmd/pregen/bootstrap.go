package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/pregen/pkg/pregen/config"
	"github.com/jamesainslie/pregen/pkg/pregen/logging"
	"github.com/jamesainslie/pregen/pkg/pregen/metrics"
	"github.com/jamesainslie/pregen/pkg/pregen/storage"
	"github.com/jamesainslie/pregen/pkg/pregen/tuner"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

const defaultRotationSize = 10 * 1024 * 1024

// initializeLogging binds the running command's flags, decodes the
// configuration and starts the logging system.
func initializeLogging(cmd *cobra.Command, _ []string) error {
	if configErr != nil {
		return &exitError{code: exitFailure, err: configErr}
	}

	v := viper.GetViper()
	if cmd != nil {
		if err := bindFlags(v, cmd); err != nil {
			return &exitError{code: exitFailure, err: err}
		}
	}

	cfg, err := config.Decode(v)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	if err := config.EnsureStateDir(); err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	return logging.Init(loggingConfig(cfg, quiet, verbose, flagBool(cmd, "tui")))
}

func closeLogging(*cobra.Command, []string) error {
	return logging.Close()
}

// loggingConfig maps the configuration and console flags onto logging.Config.
func loggingConfig(cfg *config.Config, quiet, debug, tui bool) logging.Config {
	lc := logging.DefaultConfig()
	if cfg.Logging.Level != "" {
		lc.Level = cfg.Logging.Level
	}
	if cfg.Logging.Path != "" {
		lc.Path = cfg.Logging.Path
	}
	lc.Rotation = parseRotationConfig(cfg.Logging.Rotation)
	lc.Components = cfg.Logging.Components
	lc.ConsoleLevel = "info"
	lc.TUIMode = tui
	switch {
	case debug:
		lc.Level = "debug"
		lc.ConsoleLevel = "debug"
	case quiet:
		lc.ConsoleLevel = "warn"
	}
	return lc
}

// parseRotationConfig converts the string size of the configuration into
// bytes. An empty or invalid size falls back to 10 MiB.
func parseRotationConfig(rc config.RotationConfig) logging.RotationConfig {
	size := int64(defaultRotationSize)
	if rc.MaxSize != "" {
		if n, err := humanize.ParseBytes(rc.MaxSize); err == nil && n > 0 {
			size = int64(n)
		}
	}
	return logging.RotationConfig{
		MaxSize:    size,
		MaxAge:     rc.MaxAge,
		MaxBackups: rc.MaxBackups,
		Daily:      rc.Daily,
	}
}

func flagBool(cmd *cobra.Command, name string) bool {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return false
	}
	b, _ := cmd.Flags().GetBool(name)
	return b
}

// openStorage validates sc and builds the backend wrapped in retries.
func openStorage(sc config.StorageConfig, m *metrics.Metrics) (storage.Storage, error) {
	if err := sc.Validate(); err != nil {
		return nil, &exitError{code: exitFailure, err: err}
	}

	var (
		store storage.Storage
		err   error
	)
	switch sc.EffectiveKind() {
	case config.KindLocal:
		resources, derr := tuner.Detect()
		if derr != nil {
			logger.Debug("resource detection failed", "error", derr)
		}
		tuned := tuner.CalculateWithOverride(resources, sc.Local.Workers)
		store, err = storage.NewLocal(storage.LocalConfig{
			Root:    sc.Local.Root,
			Prefix:  sc.Local.Prefix,
			Workers: tuned.WalkWorkers,
		})
	default:
		store, err = storage.NewS3(storage.S3Config{
			Endpoint:  sc.S3.Endpoint,
			Bucket:    sc.S3.Bucket,
			Prefix:    sc.S3.Prefix,
			AccessKey: sc.S3.AccessKey,
			SecretKey: sc.S3.SecretKey,
			Region:    sc.S3.Region,
			Insecure:  sc.S3.Insecure,
		})
	}
	if err != nil {
		return nil, &exitError{code: exitFailure, err: fmt.Errorf("failed to open storage: %w", err)}
	}

	logger.Info("Storage: " + store.Info().String())
	return storage.WithRetry(store, storage.RetryConfig{
		MaxRetries:     sc.Retry.MaxRetries,
		InitialBackoff: sc.Retry.InitialBackoff,
		MaxBackoff:     sc.Retry.MaxBackoff,
		Metrics:        m,
	}), nil
}

// manifestStorage points base at the storage a manifest was scanned from.
// Explicit flags win over the manifest's provenance; credentials always
// come from base.
func manifestStorage(base config.StorageConfig, info types.StorageInfo, changed func(string) bool) (config.StorageConfig, error) {
	sc := base

	if changed("local-root") {
		sc.Kind = config.KindLocal
		if !changed("local-prefix") && info.Prefix != "" {
			sc.Local.Prefix = info.Prefix
		}
		if sc.Local.Prefix == "" {
			sc.Local.Prefix = config.DefaultPrefix
		}
		return sc, nil
	}

	if info.Kind == types.StorageLocal {
		sc.Kind = config.KindLocal
		if info.LocalRoot == "" {
			return sc, errors.New("manifest was scanned from local storage but records no root; pass --local-root")
		}
		sc.Local.Root = info.LocalRoot
		if !changed("local-prefix") && info.Prefix != "" {
			sc.Local.Prefix = info.Prefix
		}
		return sc, nil
	}

	sc.Kind = config.KindS3
	if !changed("s3-endpoint") && info.Endpoint != "" {
		sc.S3.Endpoint = info.Endpoint
	}
	if !changed("s3-bucket") && info.Bucket != "" {
		sc.S3.Bucket = info.Bucket
	}
	if !changed("s3-prefix") && info.Prefix != "" {
		sc.S3.Prefix = info.Prefix
	}
	return sc, nil
}

// writeMetrics exports m when a textfile path is configured.
func writeMetrics(m *metrics.Metrics, path string) {
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		logger.Warn("failed to write metrics textfile", "path", path, "error", err)
		return
	}
	logger.Debug("metrics written", "path", path)
}
