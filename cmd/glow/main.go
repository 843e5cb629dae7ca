// Package main provides the glow CLI.
package main

import (
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
	"gopkg.in/yaml.v3"

	"github.com/ecreager/glow/flow"
	"github.com/ecreager/glow/nn"
	"github.com/ecreager/glow/tensor"
)

const version = "v0.1.0-dev"

// options describes a model architecture. It is populated from flags, or from
// a YAML file when --config is given; flags set explicitly on the command
// line win over the file.
type options struct {
	Depth       int    `yaml:"depth"`
	Levels      int    `yaml:"levels"`
	Coupling    string `yaml:"coupling"`
	Permutation string `yaml:"permutation"`
	Norm        string `yaml:"norm"`
	LearnTop    bool   `yaml:"learntop"`
	Hidden      int    `yaml:"hidden"`

	Batch    int `yaml:"batch"`
	Channels int `yaml:"channels"`
	Size     int `yaml:"size"`

	Seed uint64 `yaml:"seed"`
}

func defaultOptions() options {
	return options{
		Depth:       4,
		Levels:      2,
		Coupling:    "additive",
		Permutation: "shuffle",
		Norm:        "none",
		Hidden:      64,
		Batch:       4,
		Channels:    4,
		Size:        32,
		Seed:        42,
	}
}

func (o options) inputShape() tensor.Shape {
	return tensor.Shape{o.Batch, o.Channels, o.Size, o.Size}
}

// build constructs the codec and the generator it draws from.
func (o options) build() (*flow.Codec, *rand.Rand, error) {
	rng := rand.New(rand.NewSource(o.Seed))
	cfg := flow.Config{
		Norm:        flow.Norm(o.Norm),
		Permutation: flow.Permutation(o.Permutation),
		Coupling:    flow.Coupling(o.Coupling),
		Depth:       o.Depth,
		Levels:      o.Levels,
		LearnTop:    o.LearnTop,
		CouplingFactory: func(in, out int) (flow.CouplingFunc, error) {
			return nn.NewConvNet(in, out, o.Hidden, rng), nil
		},
		Rand: rng,
	}
	codec, err := flow.NewCodec(o.inputShape(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return codec, rng, nil
}

func loadConfig(path string, opts *options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func main() {
	opts := defaultOptions()
	var configPath string

	root := &cobra.Command{
		Use:           "glow",
		Short:         "Invertible flow models on the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return nil
			}
			fromFile := defaultOptions()
			if err := loadConfig(configPath, &fromFile); err != nil {
				return err
			}
			// Explicit flags override the file.
			merged := fromFile
			applyFlagOverrides(cmd, &merged, opts)
			opts = merged
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML file with model options")
	pf.IntVar(&opts.Depth, "depth", opts.Depth, "flow steps per scale")
	pf.IntVar(&opts.Levels, "levels", opts.Levels, "number of scales")
	pf.StringVar(&opts.Coupling, "coupling", opts.Coupling, "coupling variant: additive or affine")
	pf.StringVar(&opts.Permutation, "permutation", opts.Permutation, "permutation variant: reverse, shuffle, or conv")
	pf.StringVar(&opts.Norm, "norm", opts.Norm, "normalization variant: none or batchnorm")
	pf.BoolVar(&opts.LearnTop, "learntop", opts.LearnTop, "learn the terminal prior")
	pf.IntVar(&opts.Hidden, "hidden", opts.Hidden, "hidden channels of the coupling networks")
	pf.IntVar(&opts.Batch, "batch", opts.Batch, "batch size")
	pf.IntVar(&opts.Channels, "channels", opts.Channels, "input channels")
	pf.IntVar(&opts.Size, "size", opts.Size, "input height and width")
	pf.Uint64Var(&opts.Seed, "seed", opts.Seed, "random seed")

	root.AddCommand(describeCmd(&opts), scoreCmd(&opts), sampleCmd(&opts))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// applyFlagOverrides copies values for flags the user set explicitly from the
// flag-populated opts into dst.
func applyFlagOverrides(cmd *cobra.Command, dst *options, fromFlags options) {
	set := map[string]func(){
		"depth":       func() { dst.Depth = fromFlags.Depth },
		"levels":      func() { dst.Levels = fromFlags.Levels },
		"coupling":    func() { dst.Coupling = fromFlags.Coupling },
		"permutation": func() { dst.Permutation = fromFlags.Permutation },
		"norm":        func() { dst.Norm = fromFlags.Norm },
		"learntop":    func() { dst.LearnTop = fromFlags.LearnTop },
		"hidden":      func() { dst.Hidden = fromFlags.Hidden },
		"batch":       func() { dst.Batch = fromFlags.Batch },
		"channels":    func() { dst.Channels = fromFlags.Channels },
		"size":        func() { dst.Size = fromFlags.Size },
		"seed":        func() { dst.Seed = fromFlags.Seed },
	}
	for name, apply := range set {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
}

func describeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Print the layer stack of the configured model",
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, _, err := opts.build()
			if err != nil {
				return err
			}
			fmt.Printf("glow codec for input %v\n", codec.InputShape())
			printLayers(codec.Layers(), "")
			return nil
		},
	}
}

func printLayers(layers []flow.Layer, indent string) {
	for _, layer := range layers {
		type nested interface{ Layers() []flow.Layer }
		if n, ok := layer.(nested); ok {
			fmt.Printf("%s%T\n", indent, layer)
			printLayers(n.Layers(), indent+"  ")
			continue
		}
		fmt.Printf("%s%v\n", indent, layer)
	}
}

func scoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Score a synthetic standard-normal batch under the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, rng, err := opts.build()
			if err != nil {
				return err
			}
			x := tensor.Randn(opts.inputShape(), rng)
			objective, err := codec.Score(x)
			if err != nil {
				return err
			}
			for i, lp := range objective {
				fmt.Printf("example %d: log-likelihood %.4f\n", i, lp)
			}
			fmt.Printf("bits/dim: %.4f\n", codec.BitsPerDim(objective))
			return nil
		},
	}
}

func sampleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Draw a batch of samples from the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, _, err := opts.build()
			if err != nil {
				return err
			}
			sample, objective, err := codec.Sample()
			if err != nil {
				return err
			}
			data := sample.Data()
			var mean float64
			for _, v := range data {
				mean += v
			}
			mean /= float64(len(data))
			var sq float64
			for _, v := range data {
				d := v - mean
				sq += d * d
			}
			fmt.Printf("sampled %v (mean %.4f, std %.4f, prior cost %.4f)\n",
				sample.Shape(), mean, math.Sqrt(sq/float64(len(data))), -objective.Sum())
			return nil
		},
	}
}
