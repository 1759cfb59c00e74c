// Copyright © 2018 One Concern

package cmd

import (
	"context"

	"github.com/oneconcern/cryptfs/pkg/device"
	"github.com/oneconcern/cryptfs/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var statfsCmd = &cobra.Command{
	Use:   "statfs",
	Short: "Report file system statistics",
	Long:  `File system statistics are not supported: the command exits with ENOTSUP.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		d, err := openDevice(ctx, cryptfsFlags)
		if err != nil {
			wrapFatalln("open file system", err)
			return
		}
		defer closeDevice(d)

		err = d.Statfs(ctx, "/")
		if errors.Is(err, device.ErrNotSupported) {
			wrapFatalWithCodef(int(unix.ENOTSUP), "%v", err)
			return
		}
		if err != nil {
			wrapFatalln("statfs", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(statfsCmd)
}
