// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"github.com/gogpu/shaderconv/d3d9"
)

func newAsmCmd() *cobra.Command {
	var (
		out  string
		list bool
	)
	cmd := &cobra.Command{
		Use:   "asm <file.asm>",
		Short: "Assemble a legacy shader to its token stream",
		Long: `Assemble legacy shader assembly text to a token stream.

The tokens are written to --out, by default the input name with a .vso
or .pso extension. With --list the decoded instructions are printed
instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			code, err := d3d9.Assemble(string(src))
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			v, ins, err := d3d9.Decode(code)
			if err != nil {
				return err
			}
			if list {
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, v)
				for i := range ins {
					fmt.Fprintln(w, ins[i].String())
				}
				return nil
			}
			if out == "" {
				ext := ".vso"
				if v.IsPixel() {
					ext = ".pso"
				}
				out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ext
			}
			if err := os.WriteFile(out, code, 0o644); err != nil {
				return err
			}
			logctx.Info(cmd.Context(), "assembled",
				zap.String("file", out),
				zap.Int("instructions", len(ins)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output `file`")
	cmd.Flags().BoolVar(&list, "list", false, "print the decoded instructions")
	return cmd
}
