// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory",
	Long:  `Creates a directory. The parent directory must exist.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		d, err := openDevice(ctx, cryptfsFlags)
		if err != nil {
			wrapFatalln("open file system", err)
			return
		}
		defer closeDevice(d)

		e, err := makeDir(ctx, d, args[0])
		if err != nil {
			wrapFatalln("mkdir "+args[0], err)
			return
		}
		fmt.Fprintln(out, e.Key)
	},
}

func init() {
	rootCmd.AddCommand(mkdirCmd)
}
