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

// RuleContext carries the state every rule tier needs beyond the
// lines it is directly offered: the declared-function table (§4.2),
// the active configuration, and the current function's bounds so a
// rule can hand register-set changes to the stack-frame maintainer
// (§4.5) and rebuild a ControlFlowMap (§4.3) scoped to the right
// region.
type RuleContext struct {
	Config      Config
	Funcs       *FunctionTable
	Log         *Logger
	FuncStart   int
	FuncEnd     int
	FuncName    string
	IsInterrupt bool

	scratchCommits []ScratchCommit
}

// ScratchCommit records that the named function must callee-save the
// listed registers; the driver replays these through the stack-frame
// maintainer (§4.5) once the whole function is back in one buffer.
type ScratchCommit struct {
	FuncName string
	Regs     []string
}

// CanCommitScratch reports whether a rule may borrow reg as a scratch
// register at the current point: scratch-pad registers outside an
// interrupt need no saving at all, and anything else needs a known
// enclosing function to hang the prologue/epilogue change on.
func (ctx *RuleContext) CanCommitScratch(reg string) bool {
	if scratchPad[reg] && !ctx.IsInterrupt {
		return true
	}
	return ctx.FuncName != ""
}

// RequestScratchCommit queues reg for a §4.5 prologue/epilogue commit
// around the enclosing function. A no-op for scratch-pad registers in
// ordinary routines, which are free across calls by convention.
func (ctx *RuleContext) RequestScratchCommit(reg string) {
	if scratchPad[reg] && !ctx.IsInterrupt {
		return
	}
	if ctx.FuncName == "" {
		return
	}
	for i := range ctx.scratchCommits {
		if ctx.scratchCommits[i].FuncName == ctx.FuncName {
			ctx.scratchCommits[i].Regs = append(ctx.scratchCommits[i].Regs, reg)
			return
		}
	}
	ctx.scratchCommits = append(ctx.scratchCommits, ScratchCommit{FuncName: ctx.FuncName, Regs: []string{reg}})
}

// cflowAt builds a fresh ControlFlowMap for a query positioned after
// output and before input, per §4.3 ("rebuilt per query; cheap by
// design").
func cflowAt(output, input []Line) *ControlFlowMap {
	return BuildControlFlowMap(output, input)
}

// MultiLineRule is one entry in the §4.6(a) rule table: it examines a
// window of the last `k` emitted lines (k between Min and Max) and,
// on a match, returns the replacement sequence and how many trailing
// lines to splice out. Rules are pure and self-contained: if their
// preconditions aren't met they return ok=false ("no change"), per §7.
type MultiLineRule struct {
	Name       string
	Min, Max   int
	Aggressive bool
	Gate       func(cfg Config) bool
	Match      func(ctx *RuleContext, output, input []Line, window int) (replacement []Line, consumed int, ok bool)
}

// enabled reports whether the rule should run under cfg. Aggressive
// rules carry their own Gate rather than being switched by a single
// global flag, so this defers entirely to Gate; Gate is required to be
// non-nil for every aggressive rule.
func (r MultiLineRule) enabled(cfg Config) bool {
	if r.Gate == nil {
		return true
	}
	return r.Gate(cfg)
}

// SingleLineRule is one entry in the §4.6(b) peephole table: a
// matcher plus a builder, table-driven per the §9 design note.
type SingleLineRule struct {
	Name  string
	Gate  func(cfg Config) bool
	Match func(ctx *RuleContext, output, input []Line, idx int) (replacement []Line, ok bool)
}

func (r SingleLineRule) enabled(cfg Config) bool {
	if r.Gate == nil {
		return true
	}
	return r.Gate(cfg)
}

// StructuralRule is one entry in the §4.6(c) table: movem
// simplification and branch shortening. `secondPassOnly` matches the
// spec's "on the second pass, ... shortens" rule for branch
// shortening.
type StructuralRule struct {
	Name           string
	SecondPassOnly bool
	Gate           func(cfg Config) bool
	Match          func(ctx *RuleContext, output, input []Line, idx int, secondPass bool) (replacement []Line, ok bool)
}

func (r StructuralRule) enabled(cfg Config) bool {
	if r.Gate == nil {
		return true
	}
	return r.Gate(cfg)
}
