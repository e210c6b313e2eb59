package main

import (
	"flag"
	"strconv"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"

	"github.com/born-ml/selectpad/internal/plugin"
	"github.com/born-ml/selectpad/internal/selectpad"
)

var (
	configFile      string
	verbosity       int64
	pluginNamespace string

	criterion  string
	maxRows    int64
	maxCols    int64
	threshold  float64
	padValue   float64
	deviceName string
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "v",
			Usage:       "klog verbosity level",
			Destination: &verbosity,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml",
			Value:       configPath(),
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "namespace",
			Usage:       "plugin namespace to register the creator under",
			Value:       selectpad.DefaultNamespace,
			Destination: &pluginNamespace,
		},
	}
}

// pluginFlags are the construction attributes of the plugin.
func pluginFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "criterion",
			Usage:       "row selection criterion",
			Value:       "row_sum_positive",
			Destination: &criterion,
		},
		&cli.Int64Flag{
			Name:        "max-rows",
			Aliases:     []string{"p"},
			Usage:       "rows kept per batch element (0 = input rows)",
			Destination: &maxRows,
		},
		&cli.Int64Flag{
			Name:        "max-cols",
			Aliases:     []string{"q"},
			Usage:       "columns kept per row (0 = input features)",
			Destination: &maxCols,
		},
		&cli.Float64Flag{
			Name:        "threshold",
			Usage:       "threshold for *_above criteria",
			Destination: &threshold,
		},
		&cli.Float64Flag{
			Name:        "pad-value",
			Usage:       "value written to padded cells",
			Destination: &padValue,
		},
		&cli.StringFlag{
			Name:        "device",
			Usage:       "execution device (cpu, webgpu)",
			Value:       "cpu",
			Destination: &deviceName,
		},
	}
}

// setupLogging forwards -v to klog.
func setupLogging() error {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	if err := fs.Set("v", strconv.FormatInt(verbosity, 10)); err != nil {
		return errors.Wrap(err, "setting klog verbosity")
	}
	return nil
}

// setupRegistry moves the built-in creator into --namespace.
func setupRegistry(reg *plugin.Registry) error {
	key := plugin.Key{Namespace: selectpad.DefaultNamespace, Name: selectpad.PluginName, Version: selectpad.PluginVersion}
	return reg.SetNamespace(key, pluginNamespace)
}

// pluginAttrs builds the creator attributes from the plugin flags.
func pluginAttrs() *plugin.FieldCollection {
	fc := plugin.NewFieldCollection(
		plugin.StringField(selectpad.AttrCriterion, criterion),
		plugin.Float32Field(selectpad.AttrThreshold, float32(threshold)),
		plugin.Float32Field(selectpad.AttrPadValue, float32(padValue)),
	)
	if maxRows > 0 {
		fc.Fields = append(fc.Fields, plugin.Int32Field(selectpad.AttrMaxRows, int32(maxRows)))
	}
	if maxCols > 0 {
		fc.Fields = append(fc.Fields, plugin.Int32Field(selectpad.AttrMaxCols, int32(maxCols)))
	}
	return fc
}
