// Copyright © 2018 One Concern

package cmd

import (
	"github.com/spf13/cobra"
)

const (
	backendLocalFS = "localfs"
	backendBadger  = "badger"
	backendS3      = "s3"
)

type flagsT struct {
	root struct {
		config    string
		backend   string
		blocks    string
		cacheSize string
		logLevel  string
		trace     bool
		memProf   string
		metrics   string
	}
	stat struct {
		json bool
	}
	ls struct {
		long bool
	}
}

var cryptfsFlags = flagsT{}

func addConfigFlag(cmd *cobra.Command) string {
	config := "config"
	cmd.PersistentFlags().StringVar(&cryptfsFlags.root.config, config, "",
		"The configuration file of the file system, holding its encryption key. Created if missing")
	return config
}

func addBackendFlag(cmd *cobra.Command) string {
	backend := "backend"
	cmd.PersistentFlags().StringVar(&cryptfsFlags.root.backend, backend, "",
		"The block store: one of "+backendLocalFS+", "+backendBadger+", "+backendS3+" (defaults to "+backendLocalFS+")")
	return backend
}

func addBlocksFlag(cmd *cobra.Command) string {
	blocks := "blocks"
	cmd.PersistentFlags().StringVar(&cryptfsFlags.root.blocks, blocks, "",
		"Where blocks are stored: a directory for localfs and badger, bucket[/prefix] for s3")
	return blocks
}

func addCacheSizeFlag(cmd *cobra.Command) string {
	cacheSize := "cache-size"
	cmd.PersistentFlags().StringVar(&cryptfsFlags.root.cacheSize, cacheSize, "",
		"The memory budget of the block cache, e.g. 64MiB")
	return cacheSize
}

func addLogLevelFlag(cmd *cobra.Command) string {
	logLevel := "loglevel"
	cmd.PersistentFlags().StringVar(&cryptfsFlags.root.logLevel, logLevel, "",
		"The logging level: one of debug, info, warn, error, none")
	return logLevel
}

func addTraceFlag(cmd *cobra.Command) string {
	trace := "trace"
	cmd.PersistentFlags().BoolVar(&cryptfsFlags.root.trace, trace, false,
		"Trace and log every block operation")
	return trace
}

func addMemProfFlag(cmd *cobra.Command) string {
	memProf := "mem-prof-dir"
	cmd.PersistentFlags().StringVar(&cryptfsFlags.root.memProf, memProf, "",
		"Write heap and allocs profiles into this directory when the command completes")
	return memProf
}

func addMetricsFlag(cmd *cobra.Command) string {
	metricsFile := "metrics-file"
	cmd.PersistentFlags().StringVar(&cryptfsFlags.root.metrics, metricsFile, "",
		"Write the metrics collected by the command to this file, in the prometheus text format")
	return metricsFile
}

func addJSONFlag(cmd *cobra.Command) string {
	json := "json"
	cmd.Flags().BoolVar(&cryptfsFlags.stat.json, json, false, "Output as JSON")
	return json
}

func addLongFlag(cmd *cobra.Command) string {
	long := "long"
	cmd.Flags().BoolVarP(&cryptfsFlags.ls.long, long, "l", false, "Show mode, size and modification time")
	return long
}
