// Copyright 2026 The Phloem Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/phloem-ml/phloem/internal/ext/nn"
	"github.com/phloem-ml/phloem/internal/tensor"
)

func sigmoidCmd() *cli.Command {
	return &cli.Command{
		Name:  "sigmoid",
		Usage: "Run a sigmoid activation through the dispatch fabric",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			b, err := buildBackend(cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			input := []float32{0, 1, 2, 3}
			shape := tensor.Shape{2, 2}

			x, err := tensor.NewShared(shape, tensor.Float32)
			if err != nil {
				return err
			}
			y, err := tensor.NewShared(shape, tensor.Float32)
			if err != nil {
				return err
			}
			if err := x.SetFloat32s(b.Device(), input); err != nil {
				return err
			}
			if err := b.Call(nn.OpSigmoid, []*tensor.Shared{x}, []*tensor.Shared{y}, nil); err != nil {
				return err
			}
			out, err := y.Float32s(b.Device())
			if err != nil {
				return err
			}

			fmt.Printf("framework: %s\n", b.Framework().Name())
			fmt.Printf("sigmoid(%v) = %v\n", input, out)
			return nil
		},
	}
}
