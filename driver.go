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

// Result is what a full Run produces: the rewritten lines, the
// accumulated per-rule match counts, and the function table the run
// was scoped by, for any diagnostic the caller wants to print.
type Result struct {
	Lines []Line
	Stats map[string]int
	Funcs *FunctionTable
}

// Run is the §4.7 driver entry point: normalize once, then two full
// passes over the buffer (the second enabling branch shortening),
// offering every trailing window of emitted output to the multi-line
// rules before the single-line and structural sweeps.
func Run(cfg Config, lines []Line, logger *Logger) Result {
	normalized := Normalize(cfg, lines)
	funcs := BuildFunctionTable(normalized)

	stats := map[string]int{}
	out := normalized
	for pass := 0; pass < 2; pass++ {
		secondPass := pass == 1
		out = runPass(cfg, funcs, out, secondPass, stats, logger)
	}
	return Result{Lines: out, Stats: stats, Funcs: funcs}
}

func maxWindow(cfg Config) int {
	w := cfg.MultiLineOptimizationLimit
	if w > 6 {
		w = 6
	}
	if w < 2 {
		w = 2
	}
	return w
}

// runPass is one full pass: the line loop consumes `input` from the
// front into `output`, offering every trailing window of output to the
// multi-line rules on each append; after the loop the single-line and
// structural tiers sweep the accumulated output, and any scratch
// registers rules borrowed are committed through the stack-frame
// maintainer in between (so branch shortening sees final byte layout).
func runPass(cfg Config, funcs *FunctionTable, lines []Line, secondPass bool, stats map[string]int, logger *Logger) []Line {
	var output []Line
	input := lines
	ctx := &RuleContext{Config: cfg, Funcs: funcs, Log: logger}

	for len(input) > 0 {
		updateFuncBounds(ctx, output)

		if applyMultiLineRules(ctx, cfg, &output, input, stats, logger) {
			continue
		}

		output = append(output, input[0])
		input = input[1:]
	}
	// The final append leaves one last trailing window unoffered.
	updateFuncBounds(ctx, output)
	for applyMultiLineRules(ctx, cfg, &output, nil, stats, logger) {
		updateFuncBounds(ctx, output)
	}

	output = sweepSingleLine(ctx, cfg, output, stats, logger)
	output = commitScratchFrames(ctx, output)
	output = sweepStructural(ctx, cfg, output, secondPass, stats, logger)
	return output
}

// updateFuncBounds keeps ctx's function-scope fields current as the
// line loop walks forward: FuncStart/FuncEnd bound the region a rule
// may hand to the stack-frame maintainer, approximated as [the nearest
// `.type NAME,@function` already emitted, the current emission point)
// since the function's closing `.size` hasn't been emitted yet.
func updateFuncBounds(ctx *RuleContext, output []Line) {
	if len(output) == 0 {
		ctx.FuncStart, ctx.FuncEnd, ctx.FuncName, ctx.IsInterrupt = 0, 0, "", false
		return
	}
	start, name, ok := enclosingFunctionStart(output, len(output)-1)
	if !ok {
		start, name = 0, ""
	}
	ctx.FuncStart = start
	ctx.FuncEnd = len(output)
	ctx.FuncName = name
	ctx.IsInterrupt = isInterruptHandler(output, start, len(output))
}

// updateFuncBoundsAt scopes ctx to the function enclosing lines[idx]
// when the whole buffer is in one slice, during the post-loop sweeps.
func updateFuncBoundsAt(ctx *RuleContext, lines []Line, idx int) {
	start, name, ok := enclosingFunctionStart(lines, idx)
	if !ok {
		ctx.FuncStart, ctx.FuncEnd, ctx.FuncName, ctx.IsInterrupt = 0, len(lines), "", false
		return
	}
	end := enclosingFunctionEnd(lines, start, name)
	ctx.FuncStart = start
	ctx.FuncEnd = end
	ctx.FuncName = name
	ctx.IsInterrupt = isInterruptHandler(lines, start, end)
}

func applyMultiLineRules(ctx *RuleContext, cfg Config, output *[]Line, input []Line, stats map[string]int, logger *Logger) bool {
	limit := maxWindow(cfg)
	for k := limit; k >= 2; k-- {
		if k > len(*output) {
			continue
		}
		for _, r := range MultiLineRules {
			if !r.enabled(cfg) || k < r.Min || k > r.Max {
				continue
			}
			if repl, consumed, ok := r.Match(ctx, *output, input, k); ok {
				before := append([]Line{}, (*output)[len(*output)-consumed:]...)
				*output = append((*output)[:len(*output)-consumed], repl...)
				stats[r.Name]++
				logger.LogMatch(r.Name, before, repl)
				return true
			}
		}
	}
	return false
}

// sweepSingleLine offers every buffer line to the §4.6(b) peephole
// table, splitting the buffer at the line under examination so the
// analyzers see the usual (emitted, pending) dual-buffer view.
func sweepSingleLine(ctx *RuleContext, cfg Config, lines []Line, stats map[string]int, logger *Logger) []Line {
	out := lines
	for i := 0; i < len(out); i++ {
		updateFuncBoundsAt(ctx, out, i)
		for _, r := range SingleLineRules {
			if !r.enabled(cfg) {
				continue
			}
			if repl, ok := r.Match(ctx, out[:i], out[i:], 0); ok {
				before := []Line{out[i]}
				out = spliceLines(out, i, 1, repl)
				stats[r.Name]++
				logger.LogMatch(r.Name, before, repl)
				i += len(repl) - 1
				break
			}
		}
	}
	return out
}

func sweepStructural(ctx *RuleContext, cfg Config, lines []Line, secondPass bool, stats map[string]int, logger *Logger) []Line {
	out := lines
	for i := 0; i < len(out); i++ {
		updateFuncBoundsAt(ctx, out, i)
		for _, r := range StructuralRules {
			if !r.enabled(cfg) {
				continue
			}
			if r.SecondPassOnly && !secondPass {
				continue
			}
			if repl, ok := r.Match(ctx, out, nil, i, secondPass); ok {
				before := []Line{out[i]}
				out = spliceLines(out, i, 1, repl)
				stats[r.Name]++
				logger.LogMatch(r.Name, before, repl)
				i += len(repl) - 1
				break
			}
		}
	}
	return out
}

// commitScratchFrames replays every scratch-register borrow the pass
// queued through the stack-frame maintainer, now that each borrowing
// function is whole again in one buffer.
func commitScratchFrames(ctx *RuleContext, lines []Line) []Line {
	for _, sc := range ctx.scratchCommits {
		declPos := -1
		for i, l := range lines {
			if m := reTypeFunction.FindStringSubmatch(l.Text); m != nil && m[1] == sc.FuncName {
				declPos = i
				break
			}
		}
		if declPos < 0 {
			continue
		}
		start, end, _, ok := functionBounds(lines, declPos)
		if !ok {
			continue
		}
		committed, err := AddRegisters(lines, start, end, sc.Regs, isInterruptHandler(lines, start, end))
		if err != nil {
			continue
		}
		lines = committed
	}
	ctx.scratchCommits = nil
	return lines
}

func spliceLines(lines []Line, at, remove int, repl []Line) []Line {
	out := make([]Line, 0, len(lines)-remove+len(repl))
	out = append(out, lines[:at]...)
	out = append(out, repl...)
	out = append(out, lines[at+remove:]...)
	return out
}
