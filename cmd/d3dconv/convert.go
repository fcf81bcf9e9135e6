// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/shaderconv"
	"github.com/gogpu/shaderconv/cache"
	"github.com/gogpu/shaderconv/convert"
)

type convertFlags struct {
	out          string
	mulZeroGuard bool
	jobs         int
	cacheSize    int
}

func newConvertCmd(g *globalFlags) *cobra.Command {
	var f convertFlags
	cmd := &cobra.Command{
		Use:   "convert <file>...",
		Short: "Convert vertex and pixel shaders",
		Long: `Convert legacy vertex and pixel shaders to shader model 4 programs.

Each file is a binary token stream, or assembly text when its name ends
in .asm. Every output is written as <name>.dxbc, next to its input or in
the --out directory. Pixel shaders are converted standalone: each input
they read is bound to a fresh register.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.Context(), g, &f, args)
		},
	}
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output `dir`")
	cmd.Flags().BoolVar(&f.mulZeroGuard, "mul-zero-guard", false, "make 0 * x produce 0 for any x")
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", runtime.GOMAXPROCS(0), "concurrent conversions")
	cmd.Flags().IntVar(&f.cacheSize, "cache", 256, "conversion results kept for identical inputs")
	return cmd
}

func runConvert(ctx context.Context, g *globalFlags, f *convertFlags, files []string) error {
	snap, err := g.loadRaster()
	if err != nil {
		return err
	}
	c, err := cache.New(f.cacheSize)
	if err != nil {
		return err
	}
	if f.out != "" {
		if err := os.MkdirAll(f.out, 0o755); err != nil {
			return err
		}
	}

	start := time.Now()
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(f.jobs, 1))
	for _, path := range files {
		path := path
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			opts := shaderconv.DefaultOptions()
			opts.Raster = snap
			opts.Logger = g.log.With(zap.String("file", path))
			if f.mulZeroGuard {
				opts.Settings |= convert.SettingMulZeroGuard
			}
			if err := convertFile(ctx, c, path, f.out, opts); err != nil {
				logctx.Error(ctx, "converting", zap.String("file", path), zap.Error(err))
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	st := c.Stats()
	logctx.Info(ctx, "converted",
		zap.Int("files", len(files)),
		zap.Uint64("cache_hits", st.Hits),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func convertFile(ctx context.Context, c *cache.Cache, path, outDir string, opts *convert.Options) error {
	code, err := readShader(path)
	if err != nil {
		return err
	}
	v, err := shaderconv.Version(code)
	if err != nil {
		return err
	}
	stage := convert.StageVertex
	if v.IsPixel() {
		stage = convert.StagePixel
		opts.Upstream = &convert.Signature{}
	}

	r, hit, err := c.Do(cache.NewKey(stage, code, opts), func() (*convert.Result, error) {
		return shaderconv.Convert(code, opts)
	})
	if err != nil {
		return err
	}
	dst := outputPath(path, outDir)
	if err := os.WriteFile(dst, r.Code, 0o644); err != nil {
		return err
	}
	logctx.Info(ctx, "wrote",
		zap.String("file", dst),
		zap.Stringer("version", v),
		zap.Int("instructions", r.Instructions),
		zap.Bool("cached", hit))
	return nil
}

func outputPath(path, outDir string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".dxbc"
	if outDir == "" {
		return filepath.Join(filepath.Dir(path), name)
	}
	return filepath.Join(outDir, name)
}
