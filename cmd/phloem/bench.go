// Copyright 2026 The Phloem Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/phloem-ml/phloem/internal/framework/native"
	"github.com/phloem-ml/phloem/internal/framework/sim"
	"github.com/phloem-ml/phloem/internal/tensor"
)

func benchCmd() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Measure shared-tensor synchronization between two devices",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "elements", Usage: "tensor size in float32 elements", Value: 1 << 20},
			&cli.IntFlag{Name: "rounds", Usage: "write/sync round trips", Value: 100},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, log, err := setup(cmd)
			if err != nil {
				return err
			}
			elements := int(cmd.Int("elements"))
			rounds := int(cmd.Int("rounds"))

			host, err := native.New().Open()
			if err != nil {
				return err
			}
			accel, err := sim.New(1).Open()
			if err != nil {
				return err
			}
			defer host.Close()
			defer accel.Close()

			t, err := tensor.NewShared(tensor.Shape{elements}, tensor.Float32)
			if err != nil {
				return err
			}
			data := make([]float32, elements)
			for i := range data {
				data[i] = float32(i)
			}

			log.Info().Int("elements", elements).Int("rounds", rounds).Msg("starting bench")
			start := time.Now()
			for i := 0; i < rounds; i++ {
				// Alternate the fresh side so every round forces one transfer.
				if err := t.SetFloat32s(host, data); err != nil {
					return err
				}
				if err := t.EnsureFresh(accel); err != nil {
					return err
				}
			}
			elapsed := time.Since(start)

			bytes := int64(elements) * 4 * int64(rounds)
			fmt.Printf("synced %d rounds of %d elements in %v (%.1f MiB/s)\n",
				rounds, elements, elapsed,
				float64(bytes)/(1<<20)/elapsed.Seconds())
			if d, ok := accel.(*sim.Device); ok {
				fmt.Printf("accelerator transfers: %d, allocations: %d\n", d.Transfers(), d.Allocations())
			}
			return nil
		},
	}
}
