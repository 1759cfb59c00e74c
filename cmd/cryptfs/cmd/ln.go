// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var lnCmd = &cobra.Command{
	Use:   "ln <target> <path>",
	Short: "Create a symbolic link",
	Long:  `Creates a symbolic link. The target is stored as is and does not need to exist.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		d, err := openDevice(ctx, cryptfsFlags)
		if err != nil {
			wrapFatalln("open file system", err)
			return
		}
		defer closeDevice(d)

		e, err := makeSymlink(ctx, d, args[1], args[0])
		if err != nil {
			wrapFatalln("ln "+args[1], err)
			return
		}
		fmt.Fprintln(out, e.Key)
	},
}

func init() {
	rootCmd.AddCommand(lnCmd)
}
