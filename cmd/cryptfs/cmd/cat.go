// Copyright © 2018 One Concern

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print the content of a file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		d, err := openDevice(ctx, cryptfsFlags)
		if err != nil {
			wrapFatalln("open file system", err)
			return
		}
		defer closeDevice(d)

		p := args[0]
		f, found, err := d.LoadFile(ctx, p)
		if err != nil {
			wrapFatalln("cat "+p, err)
			return
		}
		if !found {
			wrapFatalWithCodef(int(unix.ENOENT), "%s: no such file or directory", p)
			return
		}
		content, err := f.ReadAll(ctx)
		if err != nil {
			wrapFatalln("read "+p, err)
			return
		}
		if _, err = out.Write(content); err != nil {
			wrapFatalln("write", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
