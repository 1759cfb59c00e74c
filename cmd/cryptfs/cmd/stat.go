// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/cryptfs/pkg/device"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

type statOutput struct {
	Path     string     `json:"path" yaml:"path"`
	Kind     string     `json:"kind" yaml:"kind"`
	Key      string     `json:"key" yaml:"key"`
	Parent   string     `json:"parent,omitempty" yaml:"parent,omitempty"`
	Mode     string     `json:"mode,omitempty" yaml:"mode,omitempty"`
	Size     *uint64    `json:"size,omitempty" yaml:"size,omitempty"`
	Entries  *int       `json:"entries,omitempty" yaml:"entries,omitempty"`
	Target   string     `json:"target,omitempty" yaml:"target,omitempty"`
	Modified *time.Time `json:"modified,omitempty" yaml:"modified,omitempty"`
}

func fileMode(n device.Node) os.FileMode {
	mode := os.FileMode(n.Entry.Mode).Perm()
	switch n.Kind {
	case device.KindRoot:
		return os.ModeDir | 0755
	case device.KindDir:
		return mode | os.ModeDir
	case device.KindSymlink:
		return mode | os.ModeSymlink
	default:
		return mode
	}
}

func describe(ctx context.Context, d *device.Device, p string, n device.Node) (statOutput, error) {
	s := statOutput{
		Path: p,
		Kind: n.Kind.String(),
		Key:  n.Key.String(),
		Mode: fileMode(n).String(),
	}
	if n.Parent != nil {
		s.Parent = n.Parent.Key().String()
		modified := n.Entry.LastModification
		if !modified.IsZero() {
			s.Modified = &modified
		}
	}

	switch n.Kind {
	case device.KindRoot, device.KindDir:
		dir, found, err := d.LoadDir(ctx, p)
		if err != nil {
			return s, err
		}
		if found {
			entries := dir.NumChildren()
			s.Entries = &entries
		}
	case device.KindFile:
		f, found, err := d.LoadFile(ctx, p)
		if err != nil {
			return s, err
		}
		if found {
			size, err := f.Size(ctx)
			if err != nil {
				return s, err
			}
			s.Size = &size
		}
	case device.KindSymlink:
		l, found, err := d.LoadSymlink(ctx, p)
		if err != nil {
			return s, err
		}
		if found {
			s.Target = l.Target()
		}
	}
	return s, nil
}

func printStat(s statOutput) {
	w := tabwriter.NewWriter(out, 0, 8, 1, ' ', 0)
	fmt.Fprintf(w, "path:\t%s\n", s.Path)
	fmt.Fprintf(w, "kind:\t%s\n", color.YellowString(s.Kind))
	fmt.Fprintf(w, "key:\t%s\n", color.MagentaString(s.Key))
	if s.Parent != "" {
		fmt.Fprintf(w, "parent:\t%s\n", s.Parent)
	}
	fmt.Fprintf(w, "mode:\t%s\n", s.Mode)
	if s.Size != nil {
		fmt.Fprintf(w, "size:\t%d\n", *s.Size)
	}
	if s.Entries != nil {
		fmt.Fprintf(w, "entries:\t%d\n", *s.Entries)
	}
	if s.Target != "" {
		fmt.Fprintf(w, "target:\t%s\n", s.Target)
	}
	if s.Modified != nil {
		fmt.Fprintf(w, "modified:\t%s\n", s.Modified.Format(time.RFC3339))
	}
	_ = w.Flush()
}

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Describe a file",
	Long: `Resolves an absolute path in the file system and describes what it points to.

Exits with ENOENT when the path does not exist.`,
	Example: `% cryptfs stat /docs/readme.md --json
{
  "path": "/docs/readme.md",
  "kind": "file",
  "key": "0f3e9c7b8d2a4e5f9a1b2c3d4e5f6a7b",
  ...
}`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		d, err := openDevice(ctx, cryptfsFlags)
		if err != nil {
			wrapFatalln("open file system", err)
			return
		}
		defer closeDevice(d)

		p := args[0]
		n, found, err := d.Load(ctx, p)
		if err != nil {
			wrapFatalln("stat "+p, err)
			return
		}
		if !found {
			wrapFatalWithCodef(int(unix.ENOENT), "%s: no such file or directory", p)
			return
		}

		s, err := describe(ctx, d, p, n)
		if err != nil {
			wrapFatalln("stat "+p, err)
			return
		}
		if !cryptfsFlags.stat.json {
			printStat(s)
			return
		}
		enc := jsoniter.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err = enc.Encode(s); err != nil {
			wrapFatalln("encode", err)
		}
	},
}

func init() {
	addJSONFlag(statCmd)
	rootCmd.AddCommand(statCmd)
}
