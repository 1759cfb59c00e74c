// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// initCmd creates a file system, or checks that an existing one can be mounted
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a file system",
	Long: `Creates the configuration file of a file system, with a fresh encryption key, then creates its root directory.

When the configuration exists already, the file system is mounted and left unchanged.`,
	Example: `% cryptfs init --config ~/.cryptfs/cryptfs.config --blocks ~/.cryptfs/blocks
root: 4c0bb2a1e9e6455f8d6e0d1e2b2d3a8f`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		d, err := openDevice(ctx, cryptfsFlags)
		if err != nil {
			wrapFatalln("open file system", err)
			return
		}
		defer closeDevice(d)

		infoLogger.Printf("file system ready, configuration in %s", cryptfsFlags.root.config)
		fmt.Fprintf(out, "root: %s\n", color.MagentaString(d.RootKey().String()))
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
