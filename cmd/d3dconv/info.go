// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/gogpu/shaderconv"
	"github.com/gogpu/shaderconv/convert"
)

var headingStyle = pterm.NewStyle(pterm.FgLightGreen)

func newInfoCmd(g *globalFlags) *cobra.Command {
	var mulZeroGuard bool
	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Print the usage report of a shader",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readShader(args[0])
			if err != nil {
				return err
			}
			opts := shaderconv.DefaultOptions()
			opts.Raster, err = g.loadRaster()
			if err != nil {
				return err
			}
			opts.Logger = g.log
			opts.Upstream = &convert.Signature{}
			if mulZeroGuard {
				opts.Settings |= convert.SettingMulZeroGuard
			}
			r, err := shaderconv.Convert(code, opts)
			if err != nil {
				return err
			}
			return printInfo(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().BoolVar(&mulZeroGuard, "mul-zero-guard", false, "make 0 * x produce 0 for any x")
	return cmd
}

func printInfo(w io.Writer, r *convert.Result) error {
	d := r.Descriptor
	summary := pterm.TableData{
		{"version", r.Version.String()},
		{"stage", r.Stage.String()},
		{"instructions", strconv.Itoa(r.Instructions)},
		{"extra instructions", strconv.Itoa(r.ExtraInstructions)},
		{"guard instructions", strconv.Itoa(r.GuardInstructions)},
	}
	if d != nil {
		summary = append(summary,
			[]string{"temps", strconv.FormatUint(uint64(d.TempCount()), 10)},
			[]string{"loop depth", strconv.Itoa(d.LoopDepth)},
			[]string{"samplers", fmt.Sprintf("%016b", d.SamplerMask)},
		)
	}
	if err := section(w, "Program", summary, false); err != nil {
		return err
	}

	constants := pterm.TableData{{"class", "buffer", "range", "dynamic", "registers"}}
	for c := convert.ConstFloat; c <= convert.ConstBool; c++ {
		var u convert.ConstantUsage
		if d != nil {
			u = d.Constants[c]
		}
		rng, regs := "-", strconv.FormatUint(uint64(u.Registers(c)), 10)
		if u.Used {
			rng = fmt.Sprintf("%d..%d", u.Min, u.Max)
		}
		if u.Registers(c) == convert.Unbounded {
			regs = "max"
		}
		constants = append(constants, []string{
			c.String(), fmt.Sprintf("cb%d", c), rng, strconv.FormatBool(u.Dynamic), regs,
		})
	}
	if err := section(w, "Constants", constants, true); err != nil {
		return err
	}

	if err := section(w, "Inputs", signatureTable(&r.InputLayout), true); err != nil {
		return err
	}
	if err := section(w, "Outputs", signatureTable(&r.OutputLayout), true); err != nil {
		return err
	}
	if len(r.AddedSemantics) > 0 {
		fmt.Fprintf(w, "\n%s %v\n", headingStyle.Sprint("Added inputs:"), r.AddedSemantics)
	}
	return nil
}

func signatureTable(s *convert.Signature) pterm.TableData {
	td := pterm.TableData{{"semantic", "register", "mask"}}
	for _, e := range s.Entries {
		td = append(td, []string{e.Semantic.String(), strconv.FormatUint(uint64(e.Register), 10), e.Mask.String()})
	}
	return td
}

func section(w io.Writer, title string, td pterm.TableData, header bool) error {
	t := pterm.DefaultTable.WithData(td)
	if header {
		t = t.WithHasHeader()
	}
	s, err := t.Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n%s\n", headingStyle.Sprint(title), s)
	return err
}
