// hts-tool is a samtools-style command line tool built on the htsfile
// package: it streams alignment files as SAM text and builds BAI indexes.
package main

import (
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/htsfile"
	"v.io/x/lib/cmdline"
)

func newCmdView() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "view",
		Short:    "Print records of a SAM/BAM file as SAM text",
		ArgsName: "path",
	}
	flags := viewFlags{
		index:      cmd.Flags.String("index", "", "BAM index filename. By default set to path + .bai"),
		headerOnly: cmd.Flags.Bool("header", false, "Print only the header"),
		withHeader: cmd.Flags.Bool("with-header", false, "Print the header before the records"),
		regions: cmd.Flags.String("regions", "", `A comma-separated list of regions to show instead of the
whole file. Format of each region is 'chr', 'chr:start' or 'chr:start-end'
with 1-based inclusive coordinates, as in samtools. Requires an index.`),
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("view takes one pathname argument, but got %v", argv)
		}
		return view(flags, argv[0])
	})
	return cmd
}

func newCmdIndex() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "index",
		Short:    "Build a BAI index for a coordinate-sorted BAM file",
		ArgsName: "path",
	}
	out := cmd.Flags.String("o", "", "Output index filename. By default set to path + .bai")
	minShift := cmd.Flags.Int("min-shift", 0, "Minimum interval shift; 0 selects the default")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("index takes one pathname argument, but got %v", argv)
		}
		return htsfile.BuildIndex(argv[0], *out, *minShift)
	})
	return cmd
}

func main() {
	shutdown := grail.Init()
	defer shutdown()
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "hts-tool",
			Short:    "Tools for working with SAM/BAM alignment files",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdView(),
				newCmdIndex(),
			},
		})
}
