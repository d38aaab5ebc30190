// Copyright 2026 The Phloem Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/phloem-ml/phloem/internal/framework"
	"github.com/phloem-ml/phloem/internal/framework/native"
	"github.com/phloem-ml/phloem/internal/framework/webgpu"
)

type deviceReport struct {
	Framework    string `json:"framework"`
	ID           int    `json:"id"`
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	ComputeUnits int    `json:"compute_units,omitempty"`
	Memory       uint64 `json:"memory,omitempty"`
}

func devicesCmd() *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List hardware enumerated by every framework",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "emit machine-readable JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			frameworks := []framework.Framework{webgpu.New(), native.New()}

			var reports []deviceReport
			for _, fw := range frameworks {
				for _, h := range fw.Hardware() {
					reports = append(reports, deviceReport{
						Framework:    h.Framework,
						ID:           h.ID,
						Kind:         h.Kind.String(),
						Name:         h.Name,
						ComputeUnits: h.ComputeUnits,
						Memory:       h.Memory,
					})
				}
			}

			if cmd.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}
			if len(reports) == 0 {
				fmt.Println("no hardware found")
				return nil
			}
			for _, r := range reports {
				fmt.Printf("%-8s #%d  %-12s %s", r.Framework, r.ID, r.Kind, r.Name)
				if r.ComputeUnits > 0 {
					fmt.Printf("  (%d units)", r.ComputeUnits)
				}
				fmt.Println()
			}
			return nil
		},
	}
}
