// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"github.com/gogpu/shaderconv/convert"
	"github.com/gogpu/shaderconv/dxbc"
	"github.com/gogpu/shaderconv/geometry"
)

func newGSCmd(g *globalFlags) *cobra.Command {
	var (
		outputs []string
		out     string
		name    string
	)
	cmd := &cobra.Command{
		Use:   "gs --outputs <semantic>,...",
		Short: "Generate the geometry program for a raster state",
		Long: `Generate the geometry program that emulates the primitive processing
of the raster state given by --raster, for vertices carrying the listed
outputs in register order.

Without --out the program is disassembled to standard output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			layout, err := parseLayout(outputs)
			if err != nil {
				return err
			}
			return runGS(cmd.Context(), g, layout, name, out, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVar(&outputs, "outputs", []string{"position0"}, "vertex output semantics")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output `file`")
	cmd.Flags().StringVar(&name, "name", "", "debug name embedded in the program")
	return cmd
}

// parseLayout binds each semantic to the next output register.
func parseLayout(names []string) (*convert.Signature, error) {
	s := &convert.Signature{}
	for i, name := range names {
		sem, err := convert.ParseSemantic(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return nil, err
		}
		if s.Find(sem) != nil {
			return nil, fmt.Errorf("duplicate output %s", sem)
		}
		mask := dxbc.MaskXYZW
		if sem == convert.SemanticPointSize || sem == convert.SemanticFog {
			mask = dxbc.MaskX
		}
		s.Add(convert.SignatureEntry{
			Semantic: sem,
			Register: uint32(i),
			Mask:     convert.CompressMask(mask),
		})
	}
	return s, nil
}

func runGS(ctx context.Context, g *globalFlags, layout *convert.Signature, name, out string, w io.Writer) error {
	snap, err := g.loadRaster()
	if err != nil {
		return err
	}
	r, err := geometry.Generate(layout, &geometry.Options{
		Raster:    snap,
		DebugName: name,
		Logger:    g.log,
	})
	if err != nil {
		return err
	}
	logctx.Info(ctx, "generated geometry program",
		zap.Stringer("features", r.Features),
		zap.Uint32("max_vertices", r.MaxVertices),
		zap.Int("instructions", r.Instructions))

	if out != "" {
		return os.WriteFile(out, r.Code, 0o644)
	}
	p, err := dxbc.Decode(r.Code)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "// %s\n", r.Features)
	_, err = io.WriteString(w, p.String())
	return err
}
