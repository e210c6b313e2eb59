package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/selectpad/internal/device"
	"github.com/born-ml/selectpad/internal/engine"
	"github.com/born-ml/selectpad/internal/tensor"
)

func benchCmd() *cli.Command {
	var (
		batch      int64
		rows       int64
		feats      int64
		iterations int64
		streams    int64
		seed       uint64
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Benchmark the plugin on random data, one clone per stream",
		Flags: append(pluginFlags(),
			&cli.Int64Flag{Name: "batch", Aliases: []string{"b"}, Value: 32, Destination: &batch, Usage: "batch size"},
			&cli.Int64Flag{Name: "rows", Aliases: []string{"n"}, Value: 512, Destination: &rows, Usage: "rows per batch element"},
			&cli.Int64Flag{Name: "features", Aliases: []string{"f"}, Value: 64, Destination: &feats, Usage: "features per row"},
			&cli.Int64Flag{Name: "iterations", Value: 100, Destination: &iterations, Usage: "launches per stream"},
			&cli.Int64Flag{Name: "streams", Value: 4, Destination: &streams, Usage: "concurrent streams"},
			&cli.Uint64Flag{Name: "seed", Value: 42, Destination: &seed, Usage: "random seed"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyPluginConfig(cmd, LoadConfig(configFile))
			kind, err := device.ParseKind(deviceName)
			if err != nil {
				return err
			}

			in := randomTensor(rand.New(rand.NewPCG(seed, seed)), int(batch), int(rows), int(feats))
			inst, err := engine.New(nil).Build(pluginSpec(), []tensor.Desc{in.Desc()})
			if err != nil {
				return err
			}
			defer func() { _ = inst.Close() }()

			clones := make([]*engine.Instance, streams)
			for i := range clones {
				if clones[i], err = inst.Clone(); err != nil {
					return err
				}
				defer func(c *engine.Instance) { _ = c.Close() }(clones[i])
			}

			start := time.Now()
			g, gctx := errgroup.WithContext(ctx)
			for _, c := range clones {
				g.Go(func() error {
					s, err := device.NewStream(kind)
					if err != nil {
						return err
					}
					defer s.Close()
					for range iterations {
						if _, err := c.Execute(gctx, s, []engine.Tensor{in}); err != nil {
							return err
						}
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			elapsed := time.Since(start)

			launches := streams * iterations
			bytesIn := uint64(launches) * uint64(in.Desc().ByteSize())
			fmt.Printf("input:      %s (%s)\n", in.Dims, humanize.IBytes(uint64(in.Desc().ByteSize())))
			fmt.Printf("workspace:  %s\n", humanize.IBytes(uint64(inst.WorkspaceSize())))
			fmt.Printf("launches:   %s on %d streams in %s\n", humanize.Comma(launches), streams, elapsed.Round(time.Millisecond))
			fmt.Printf("throughput: %s launches/s, %s/s\n",
				humanize.CommafWithDigits(float64(launches)/elapsed.Seconds(), 1),
				humanize.IBytes(uint64(float64(bytesIn)/elapsed.Seconds())))
			return nil
		},
	}
}

// randomTensor draws values in [-1, 1) so that roughly half the rows pass
// sign-based criteria.
func randomTensor(r *rand.Rand, b, n, f int) engine.Tensor {
	data := make([]float32, b*n*f)
	for i := range data {
		data[i] = r.Float32()*2 - 1
	}
	return engine.Tensor{Type: tensor.Float32, Dims: tensor.Shape{b, n, f}, Data: data}
}
