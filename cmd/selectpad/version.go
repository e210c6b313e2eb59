package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/selectpad/internal/plugin"
	"github.com/born-ml/selectpad/internal/version"
)

// versionCmd prints the build and the registered plugin keys, as text or
// as JSON for scripts.
func versionCmd() *cli.Command {
	var asJSON bool
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information and registered plugins",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return writeVersion(os.Stdout, version.Resolve(), plugin.Default().Keys(), asJSON)
		},
	}
}

func writeVersion(w io.Writer, info version.Info, keys []plugin.Key, asJSON bool) error {
	plugins := make([]string, len(keys))
	for i, k := range keys {
		plugins[i] = k.String()
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			version.Info
			Plugins []string `json:"plugins"`
		}{info, plugins})
	}

	_, err := fmt.Fprintf(w, "selectpad %s %s\n", info, info.GoVersion)
	if err == nil && info.BuildTime != "" {
		_, err = fmt.Fprintf(w, "built %s\n", info.BuildTime)
	}
	if err == nil && len(plugins) > 0 {
		_, err = fmt.Fprintf(w, "plugins %s\n", strings.Join(plugins, " "))
	}
	return err
}
