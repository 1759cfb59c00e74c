// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/oneconcern/cryptfs/internal"
	"github.com/oneconcern/cryptfs/pkg/dlogger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cryptfs",
	Short: "cryptfs stores an encrypted file system in blocks",
	Long: `cryptfs stores a file system as encrypted blocks of fixed size, on a local disk, in an embedded database or in an S3 bucket.

Block contents and sizes reveal nothing about the files they hold: file contents, names and the directory
structure are all encrypted with a key kept in the configuration file of the file system.

Keep the configuration file safe: without it, blocks cannot be decrypted.
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		logger, err = dlogger.GetLogger(cryptfsFlags.root.logLevel, dlogger.Console())
		if err != nil {
			logger = zap.NewNop()
			wrapFatalln("invalid log level", err)
			return
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cryptfsFlags.root.metrics != "" {
			if err := prometheus.WriteToTextfile(cryptfsFlags.root.metrics, metricsRegistry); err != nil {
				wrapFatalln("write metrics", err)
			}
		}
		if cryptfsFlags.root.memProf != "" {
			if err := internal.WriteMemProfiles(cryptfsFlags.root.memProf, "cryptfs-"+cmd.Name(), logger); err != nil {
				wrapFatalln("write memory profiles", err)
			}
		}
		_ = logger.Sync()
	},
}

var (
	settings *CLIConfig
	logger   = zap.NewNop()

	// collects the metrics of devices opened with --metrics-file
	metricsRegistry = prometheus.NewRegistry()
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addConfigFlag(rootCmd)
	addBackendFlag(rootCmd)
	addBlocksFlag(rootCmd)
	addCacheSizeFlag(rootCmd)
	addLogLevelFlag(rootCmd)
	addTraceFlag(rootCmd)
	addMemProfFlag(rootCmd)
	addMetricsFlag(rootCmd)
}

func cryptfsHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cryptfs"
	}
	return filepath.Join(home, ".cryptfs")
}

// initConfig reads in the settings file and ENV variables if set.
func initConfig() {
	viper.SetDefault("config", filepath.Join(cryptfsHome(), "cryptfs.config"))
	viper.SetDefault("backend", backendLocalFS)
	viper.SetDefault("blocks", filepath.Join(cryptfsHome(), "blocks"))
	viper.SetDefault("cachesize", units.BytesSize(64*units.MiB))
	viper.SetDefault("loglevel", dlogger.LogLevelInfo)

	if os.Getenv("CRYPTFS_SETTINGS") != "" {
		// Use the settings file from the environment.
		viper.SetConfigFile(os.Getenv("CRYPTFS_SETTINGS"))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.cryptfs")
		viper.AddConfigPath("/etc/cryptfs")
		viper.SetConfigName("cryptfs")
	}

	viper.SetEnvPrefix("cryptfs")
	viper.AutomaticEnv() // read in environment variables that match
	// If a settings file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		infoLogger.Println("Using settings file:", viper.ConfigFileUsed())
	}
	var err error
	settings, err = newConfig()
	if err != nil {
		logFatalln(err)
		return
	}
	settings.setParams(&cryptfsFlags)
}
