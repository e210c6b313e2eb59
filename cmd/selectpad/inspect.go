package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/selectpad/internal/plugin"
	"github.com/born-ml/selectpad/internal/selectpad"
)

func inspectCmd() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "List registered plugins and criteria, or describe a serialized plugin",
		ArgsUsage: "[plugin.bin]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				printRegistry()
				return nil
			}
			return inspectFile(cmd.Args().First())
		},
	}
}

func printRegistry() {
	fmt.Println("plugins:")
	for _, k := range plugin.Default().Keys() {
		fmt.Printf("  %s\n", k)
		c, err := plugin.Default().Lookup(k.Name, k.Version, k.Namespace)
		if err != nil {
			continue
		}
		for _, f := range c.FieldNames().Fields {
			req := ""
			if f.Required {
				req = " (required)"
			}
			fmt.Printf("    %-10s %s%s\n", f.Name, f.Type, req)
		}
	}
	fmt.Println("criteria:")
	for _, name := range selectpad.CriterionNames() {
		c, _ := selectpad.LookupCriterion(name)
		fmt.Printf("  %-18s id=%d inputs=%d\n", c.Name, c.ID, c.Inputs)
	}
}

func inspectFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading serialized plugin")
	}
	p, err := selectpad.NewCreator().Deserialize(selectpad.PluginName, data)
	if err != nil {
		return err
	}
	defer p.Destroy()

	in, out := p.Configured()
	rows, cols := p.Bounds()
	thr, pad := p.Threshold()
	fmt.Printf("plugin:     %s@%s\n", p.PluginType(), p.PluginVersion())
	fmt.Printf("criterion:  %s (threshold %g)\n", p.Criterion().Name, thr)
	fmt.Printf("bounds:     P=%d Q=%d pad=%g\n", rows, cols, pad)
	fmt.Printf("input:      %s\n", in)
	fmt.Printf("output:     %s\n", out)
	fmt.Printf("workspace:  %s\n", humanize.IBytes(uint64(p.WorkspaceSize(nil, nil))))
	fmt.Printf("serialized: %s\n", humanize.Bytes(uint64(p.SerializationSize())))
	return nil
}
