// Copyright 2026 The Phloem Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Command phloem inspects and exercises the compute substrate: device
// enumeration, synchronization benchmarks, and a small dispatch demo.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/phloem-ml/phloem/internal/backend"
	"github.com/phloem-ml/phloem/internal/config"
	"github.com/phloem-ml/phloem/internal/ext/blas"
	"github.com/phloem-ml/phloem/internal/ext/nn"
	"github.com/phloem-ml/phloem/internal/framework"
	"github.com/phloem-ml/phloem/internal/framework/native"
	"github.com/phloem-ml/phloem/internal/framework/webgpu"
)

func main() {
	app := &cli.Command{
		Name:  "phloem",
		Usage: "Multi-device compute substrate CLI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a YAML config file"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, error or disabled"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			devicesCmd(),
			benchCmd(),
			sigmoidCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config file (if any) and builds the logger, honoring the
// --log-level override.
func setup(cmd *cli.Command) (config.Config, zerolog.Logger, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, zerolog.Nop(), err
		}
		cfg = loaded
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(cfg.Level()).
		With().Timestamp().Logger()
	return cfg, log, nil
}

// openFramework maps a config framework name to a constructed framework.
func openFramework(name string) (framework.Framework, error) {
	switch name {
	case webgpu.Name:
		return webgpu.New(), nil
	case native.Name:
		return native.New(), nil
	default:
		return nil, fmt.Errorf("unknown framework %q", name)
	}
}

// buildBackend walks the configured framework preference order, skipping
// frameworks that enumerate no hardware.
func buildBackend(cfg config.Config, log zerolog.Logger) (*backend.Backend, error) {
	kind, restricted, err := cfg.Kind()
	if err != nil {
		return nil, err
	}
	pc := cfg.ParallelConfig()
	opts := []backend.Option{
		backend.WithPackages(nn.NewWith(pc), blas.NewWith(pc)),
		backend.WithLogger(log),
	}
	if restricted {
		opts = append(opts, backend.WithKind(kind))
	}
	for _, name := range cfg.Frameworks {
		fw, err := openFramework(name)
		if err != nil {
			return nil, err
		}
		if len(fw.Hardware()) == 0 {
			log.Debug().Str("framework", name).Msg("no hardware, skipping")
			continue
		}
		b, err := backend.New(fw, opts...)
		if err != nil {
			log.Warn().Err(err).Str("framework", name).Msg("framework unusable, skipping")
			continue
		}
		return b, nil
	}
	return nil, fmt.Errorf("no configured framework is usable: %w", framework.ErrNoSuchHardware)
}
