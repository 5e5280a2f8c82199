// Copyright 2025 m68kopt Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cfg := DefaultConfig()

	cmd := &cobra.Command{
		Use:           "m68kopt <input.s> <output.s>",
		Short:         "Peephole-optimize GAS m68k assembly produced by a C compiler",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCLI(cmd, args[0], args[1], cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&cfg.SaveOptimizations, "save_optimizations", cfg.SaveOptimizations, "keep applying optimizations across repeated passes")
	flags.BoolVar(&cfg.PrintLog, "print_log", cfg.PrintLog, "print a colored diff for every rule match")
	flags.BoolVar(&cfg.TwoColumnLog, "two_column_log", cfg.TwoColumnLog, "print the match diff as aligned before/after columns")
	flags.BoolVar(&cfg.OptimizeInlineAsmBlocks, "optimize_inline_asm_blocks", cfg.OptimizeInlineAsmBlocks, "also optimize #APP/#NO_APP inline asm blocks")
	flags.BoolVar(&cfg.UseFindFreeAfterUse, "use_find_free_after_use", cfg.UseFindFreeAfterUse, "enable the free-register-after-use query")
	flags.BoolVar(&cfg.UseFindNotUsed, "use_find_not_used", cfg.UseFindNotUsed, "enable the used-before-overwritten query")
	flags.BoolVar(&cfg.UseFabri1983MovemOptimizations, "use_fabri1983_movem_optimizations", cfg.UseFabri1983MovemOptimizations, "enable the movem register-list coalescing family")
	flags.BoolVar(&cfg.UseFabri1983Optimizations, "use_fabri1983_optimizations", cfg.UseFabri1983Optimizations, "enable the general peephole rule families")
	flags.BoolVar(&cfg.UseTasOnIOMemory, "use_tas_on_io_memory", cfg.UseTasOnIOMemory, "allow tas rewrites over memory-mapped I/O regions")
	flags.BoolVar(&cfg.OptimizeMulHighWordImportant, "optimize_mul_high_word_important", cfg.OptimizeMulHighWordImportant, "keep multiply-by-constant exact including the high word")
	flags.BoolVar(&cfg.OptimizeMulHighWordNotImportant, "optimize_mul_high_word_not_important", cfg.OptimizeMulHighWordNotImportant, "lower power-of-two multiplies to shifts, ignoring the high word")
	flags.BoolVar(&cfg.OptimizeDivisionHighWordNotImportant, "optimize_division_high_word_not_important", cfg.OptimizeDivisionHighWordNotImportant, "lower power-of-two unsigned divides to shifts")
	flags.BoolVar(&cfg.UseReplaceAddqlSubqlByAddqwSubqw, "use_replace_addql_subql_by_addqw_subqw", cfg.UseReplaceAddqlSubqlByAddqwSubqw, "narrow addq.l/subq.l on address registers to the word form")
	flags.BoolVar(&cfg.UseReplaceLoadSubroutineIntoAnByDirectCall, "use_replace_load_subroutine_into_an_by_direct_call", cfg.UseReplaceLoadSubroutineIntoAnByDirectCall, "[aggressive] fold move+jmp(aN) into a direct jmp")
	flags.BoolVar(&cfg.UseAggressiveAvoidClearBeforeMoveWord, "use_aggressive_avoid_clear_before_move_word", cfg.UseAggressiveAvoidClearBeforeMoveWord, "[aggressive] drop a clear made redundant by a following full-width move")
	flags.BoolVar(&cfg.UseAggressiveCompactTwoWordsPush, "use_aggressive_compact_two_words_push", cfg.UseAggressiveCompactTwoWordsPush, "[aggressive] compact alternating push/adjust sequences")
	flags.BoolVar(&cfg.UseAggressiveClrSp, "use_aggressive_clr_sp", cfg.UseAggressiveClrSp, "[aggressive] allow sp-clearing rewrites")
	flags.BoolVar(&cfg.UseAggressiveReplaceLongIndirectByWord, "use_aggressive_replace_long_indirect_by_word", cfg.UseAggressiveReplaceLongIndirectByWord, "[aggressive] narrow a long indexed addressing mode to word")
	flags.BoolVar(&cfg.RewriteLongIndexToWord, "rewrite_long_index_to_word", cfg.RewriteLongIndexToWord, "normalize disp(aN,dN.l) to disp(aN,dN.w)")
	flags.IntVar(&cfg.MultiLineOptimizationLimit, "multi_line_optimization_limit", cfg.MultiLineOptimizationLimit, "largest trailing window (2-6) offered to multi-line rules")
	flags.Bool("dry_run", false, "alias for --save_optimizations=false: report matches without rewriting")

	return cmd
}

func runCLI(cmd *cobra.Command, inputPath, outputPath string, cfg Config) error {
	if dryRun, _ := cmd.Flags().GetBool("dry_run"); dryRun {
		cfg.SaveOptimizations = false
	}

	lines, err := readLines(inputPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreadableInput, inputPath, err)
	}

	logger := NewLogger(cmd.OutOrStdout(), cfg)
	result := Run(cfg, lines, logger)
	logger.Summary(result.Stats)

	// With save_optimizations off the run is a dry-run reporter: the
	// matches were logged above and no output file is produced.
	if !cfg.SaveOptimizations {
		return nil
	}
	if err := writeLines(outputPath, result.Lines); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnwritableOutput, outputPath, err)
	}
	return nil
}

func readLines(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []Line
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	origin := 0
	for scanner.Scan() {
		origin++
		lines = append(lines, NewLine(scanner.Text(), origin))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func writeLines(path string, lines []Line) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l.Text); err != nil {
			return err
		}
	}
	return w.Flush()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
