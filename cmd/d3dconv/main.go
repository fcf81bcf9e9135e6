// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Command d3dconv converts legacy Direct3D 9 shaders to shader model 4
// programs.
//
// Usage:
//
//	d3dconv convert [flags] <file>...
//	d3dconv gs --outputs <semantics> [flags]
//	d3dconv info <file>
//	d3dconv asm <file.asm>
//
// Examples:
//
//	d3dconv convert -j 8 --out build shaders/*.vso       # Convert a shader corpus
//	d3dconv convert --raster fog.toml lit.asm            # Convert with fog enabled
//	d3dconv gs --outputs position0,psize0 --raster points.toml
//	d3dconv info lit.asm                                 # Print the usage report
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/raster"
)

const version = "0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	root := newRootCmd(out, errOut)
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(errOut, "d3dconv: %v\n", err)
		return 1
	}
	return 0
}

type globalFlags struct {
	verbose bool
	raster  string

	// log is also stored in the command context for logctx.
	log *zap.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	g := &globalFlags{log: zap.NewNop()}
	root := &cobra.Command{
		Use:           "d3dconv",
		Short:         "Convert Direct3D 9 shaders to shader model 4",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			g.log = newLogger(errOut, g.verbose)
			cmd.SetContext(logctx.NewContext(cmd.Context(), g.log))
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log conversion details")
	root.PersistentFlags().StringVar(&g.raster, "raster", "", "raster state `file` (TOML)")

	root.AddCommand(
		newConvertCmd(g),
		newGSCmd(g),
		newInfoCmd(g),
		newAsmCmd(),
	)
	return root
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
}

// loadRaster returns the snapshot named by --raster, or the default state.
func (g *globalFlags) loadRaster() (raster.Snapshot, error) {
	if g.raster == "" {
		return raster.Default(), nil
	}
	return raster.LoadTOML(g.raster)
}

// readShader reads a token stream. Files ending in .asm are assembled.
func readShader(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(filepath.Ext(path), ".asm") {
		return data, nil
	}
	code, err := d3d9.Assemble(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return code, nil
}
