// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <local file> <path>",
	Short: "Copy a local file into the file system",
	Long: `Copies a local file into the file system, keeping its permissions and modification time.

The parent directory must exist, and the destination must not.`,
	Example: `% cryptfs put ./notes.txt /docs/notes.txt`,
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		local, p := args[0], args[1]

		info, err := os.Stat(local)
		if err != nil {
			wrapFatalln("stat local file", err)
			return
		}
		if !info.Mode().IsRegular() {
			wrapFatalln(local+" is not a regular file", nil)
			return
		}
		content, err := os.ReadFile(local)
		if err != nil {
			wrapFatalln("read local file", err)
			return
		}

		d, err := openDevice(ctx, cryptfsFlags)
		if err != nil {
			wrapFatalln("open file system", err)
			return
		}
		defer closeDevice(d)

		e, err := putFile(ctx, d, p, content, info.Mode(), info.ModTime())
		if err != nil {
			wrapFatalln("put "+p, err)
			return
		}
		fmt.Fprintln(out, e.Key)
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
}
