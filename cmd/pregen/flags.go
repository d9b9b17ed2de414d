package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// viperKeyAnnotation marks a flag with the config key it overrides.
// Several commands share short flags with different meanings, so keys are
// bound for the running command only.
const viperKeyAnnotation = "pregen_viper_key"

// bindKey annotates flag name of cmd with the config key it overrides.
func bindKey(cmd *cobra.Command, name, key string) {
	if err := cmd.Flags().SetAnnotation(name, viperKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("bind %s: %v", name, err))
	}
}

// bindFlags binds every annotated flag of cmd to its config key.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys, ok := f.Annotations[viperKeyAnnotation]
		if !ok || len(keys) == 0 || err != nil {
			return
		}
		err = v.BindPFlag(keys[0], f)
	})
	return err
}

// addStorageFlags registers the storage selection flags shared by scan and
// generate.
func addStorageFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("local-root", "", "use a local directory mirroring the bucket instead of S3")
	f.String("local-prefix", "", "namespace directory under --local-root (default \"attachments\")")
	f.Int("workers", 0, "local directory walk workers (0=auto)")
	f.String("s3-endpoint", "", "S3 endpoint URL (env S3_ENDPOINT)")
	f.String("s3-bucket", "", "S3 bucket (env S3_BUCKET)")
	f.String("s3-prefix", "", "key prefix in the bucket (env S3_PREFIX)")
	f.String("s3-access-key", "", "S3 access key (env S3_ACCESS_KEY)")
	f.String("s3-secret-key", "", "S3 secret key (env S3_SECRET_KEY)")
	f.String("s3-region", "", "S3 region (env S3_REGION)")
	f.Bool("s3-insecure", false, "skip TLS certificate verification")

	bindKey(cmd, "local-root", "storage.local.root")
	bindKey(cmd, "local-prefix", "storage.local.prefix")
	bindKey(cmd, "workers", "storage.local.workers")
	bindKey(cmd, "s3-endpoint", "storage.s3.endpoint")
	bindKey(cmd, "s3-bucket", "storage.s3.bucket")
	bindKey(cmd, "s3-prefix", "storage.s3.prefix")
	bindKey(cmd, "s3-access-key", "storage.s3.access_key")
	bindKey(cmd, "s3-secret-key", "storage.s3.secret_key")
	bindKey(cmd, "s3-region", "storage.s3.region")
	bindKey(cmd, "s3-insecure", "storage.s3.insecure")
}
