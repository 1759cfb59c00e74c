// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"os"
	"path"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/oneconcern/cryptfs/pkg/device"
	"github.com/oneconcern/cryptfs/pkg/fsblob"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func entryName(e fsblob.Entry) string {
	switch e.Type {
	case fsblob.EntryDir:
		return color.BlueString(e.Name + "/")
	case fsblob.EntrySymlink:
		return color.CyanString(e.Name)
	default:
		return e.Name
	}
}

func entrySize(ctx context.Context, d *device.Device, dir string, e fsblob.Entry) string {
	if e.Type != fsblob.EntryFile {
		return "-"
	}
	f, found, err := d.LoadFile(ctx, path.Join(dir, e.Name))
	if err != nil || !found {
		return "?"
	}
	size, err := f.Size(ctx)
	if err != nil {
		return "?"
	}
	return units.HumanSize(float64(size))
}

var lsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List a directory",
	Long:  `Lists the entries of a directory, ordered by name. Directories are shown with a trailing slash.`,
	Example: `% cryptfs ls / -l
drwxr-xr-x  -      2024-03-01T10:00:00Z  docs/
-rw-r--r--  12kB   2024-03-01T10:02:00Z  notes.txt`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		d, err := openDevice(ctx, cryptfsFlags)
		if err != nil {
			wrapFatalln("open file system", err)
			return
		}
		defer closeDevice(d)

		p := "/"
		if len(args) > 0 {
			p = args[0]
		}
		dir, found, err := d.LoadDir(ctx, p)
		if err != nil {
			wrapFatalln("list "+p, err)
			return
		}
		if !found {
			wrapFatalWithCodef(int(unix.ENOENT), "%s: no such file or directory", p)
			return
		}

		w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
		for _, e := range dir.Children() {
			if !cryptfsFlags.ls.long {
				fmt.Fprintln(w, entryName(e))
				continue
			}
			mode := os.FileMode(e.Mode).Perm()
			switch e.Type {
			case fsblob.EntryDir:
				mode |= os.ModeDir
			case fsblob.EntrySymlink:
				mode |= os.ModeSymlink
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				mode,
				entrySize(ctx, d, p, e),
				e.LastModification.UTC().Format(time.RFC3339),
				entryName(e),
			)
		}
		_ = w.Flush()
	},
}

func init() {
	addLongFlag(lsCmd)
	rootCmd.AddCommand(lsCmd)
}
