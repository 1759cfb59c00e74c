// Copyright © 2018 One Concern

package cmd

import (
	"github.com/spf13/viper"
)

// CLIConfig describes the CLI settings, read from a settings file or the environment.
type CLIConfig struct {
	Config    string `json:"config" yaml:"config" mapstructure:"config"`
	Backend   string `json:"backend" yaml:"backend" mapstructure:"backend"`
	Blocks    string `json:"blocks" yaml:"blocks" mapstructure:"blocks"`
	CacheSize string `json:"cachesize" yaml:"cachesize" mapstructure:"cachesize"`
	LogLevel  string `json:"loglevel" yaml:"loglevel" mapstructure:"loglevel"`
}

func newConfig() (*CLIConfig, error) {
	var cfg CLIConfig
	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setParams fills the flags which were not set on the command line
func (c *CLIConfig) setParams(flags *flagsT) {
	if flags.root.config == "" {
		flags.root.config = c.Config
	}
	if flags.root.backend == "" {
		flags.root.backend = c.Backend
	}
	if flags.root.blocks == "" {
		flags.root.blocks = c.Blocks
	}
	if flags.root.cacheSize == "" {
		flags.root.cacheSize = c.CacheSize
	}
	if flags.root.logLevel == "" {
		flags.root.logLevel = c.LogLevel
	}
}
