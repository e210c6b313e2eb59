// Package main provides the selectpad CLI: run, inspect, benchmark and serve
// the SelectAndPad plugin outside a host runtime.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"

	"github.com/born-ml/selectpad/internal/plugin"
	_ "github.com/born-ml/selectpad/internal/selectpad"
)

func main() {
	app := &cli.Command{
		Name:  "selectpad",
		Usage: "Select rows of a batched tensor and pad them to a fixed shape",
		Flags: loggingFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if err := setupLogging(); err != nil {
				return ctx, err
			}
			return ctx, setupRegistry(plugin.Default())
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			plugin.Default().Clear()
			klog.Flush()
			return nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			runCmd(),
			inspectCmd(),
			benchCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
