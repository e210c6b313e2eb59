package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"

	"github.com/born-ml/selectpad/internal/device"
	"github.com/born-ml/selectpad/internal/engine"
	"github.com/born-ml/selectpad/internal/selectpad"
	"github.com/born-ml/selectpad/internal/tensor"
)

// runInput is the JSON document read by the run command.
type runInput struct {
	Inputs []engine.Tensor `json:"inputs"`
}

func pluginSpec() engine.Spec {
	return engine.Spec{
		Name:      selectpad.PluginName,
		Version:   selectpad.PluginVersion,
		Namespace: pluginNamespace,
		Attrs:     pluginAttrs(),
	}
}

func runCmd() *cli.Command {
	var (
		inputPath  string
		outputPath string
		savePath   string
		loadPath   string
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Run the plugin once on tensors read from a JSON file",
		Flags: append(pluginFlags(),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "JSON file with {\"inputs\": [...]} (- for stdin)",
				Value:       "-",
				Destination: &inputPath,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "write the output tensor here instead of stdout",
				Destination: &outputPath,
			},
			&cli.StringFlag{
				Name:        "save",
				Usage:       "write the serialized plugin to this file",
				Destination: &savePath,
			},
			&cli.StringFlag{
				Name:        "load",
				Usage:       "run a serialized plugin instead of building one from flags",
				Destination: &loadPath,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyPluginConfig(cmd, LoadConfig(configFile))

			in, err := readRunInput(inputPath)
			if err != nil {
				return err
			}
			kind, err := device.ParseKind(deviceName)
			if err != nil {
				return err
			}

			eng := engine.New(nil)
			var inst *engine.Instance
			if loadPath != "" {
				data, err := os.ReadFile(loadPath)
				if err != nil {
					return errors.Wrap(err, "reading serialized plugin")
				}
				inst, err = eng.Load(pluginSpec(), data)
				if err != nil {
					return err
				}
			} else {
				descs := make([]tensor.Desc, len(in.Inputs))
				for i, t := range in.Inputs {
					descs[i] = t.Desc()
				}
				inst, err = eng.Build(pluginSpec(), descs)
				if err != nil {
					return err
				}
			}
			defer func() { _ = inst.Close() }()
			klog.Infof("plugin %s ready, workspace %s", inst.ID, humanize.IBytes(uint64(inst.WorkspaceSize())))

			stream, err := device.NewStream(kind)
			if err != nil {
				return err
			}
			defer stream.Close()

			out, err := inst.Execute(ctx, stream, in.Inputs)
			if err != nil {
				return err
			}

			if savePath != "" {
				data, err := inst.Serialize()
				if err != nil {
					return err
				}
				if err := os.WriteFile(savePath, data, 0o644); err != nil {
					return errors.Wrap(err, "writing serialized plugin")
				}
				klog.Infof("saved plugin to %s (%s)", savePath, humanize.Bytes(uint64(len(data))))
			}
			return writeTensor(outputPath, out)
		},
	}
}

func readRunInput(path string) (runInput, error) {
	var r io.Reader = os.Stdin
	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return runInput{}, errors.Wrap(err, "opening input")
		}
		defer f.Close()
		r = f
	}
	var in runInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return runInput{}, errors.Wrap(err, "decoding input")
	}
	if len(in.Inputs) == 0 {
		return runInput{}, errors.New("input has no tensors")
	}
	for i, t := range in.Inputs {
		if err := t.Validate(); err != nil {
			return runInput{}, errors.WithMessagef(err, "input %d", i)
		}
	}
	return in, nil
}

func writeTensor(path string, t engine.Tensor) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err = fmt.Println(string(data))
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
