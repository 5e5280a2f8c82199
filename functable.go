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

// FunctionTable records every name declared `.type NAME,@function`
// and every name exported via `.globl NAME`, per §4.2. It is built
// once per translation unit and consulted by control-flow analysis to
// distinguish intra-unit labels (possible jsr/bsr targets the engine
// may reason about) from external calls it must treat conservatively.
type FunctionTable struct {
	declared map[string]bool
	exported map[string]bool
}

// BuildFunctionTable scans the whole buffer once, collecting
// `.type NAME,@function` and `.globl NAME` directives.
func BuildFunctionTable(lines []Line) *FunctionTable {
	ft := &FunctionTable{declared: map[string]bool{}, exported: map[string]bool{}}
	for _, l := range lines {
		if m := reTypeFunction.FindStringSubmatch(l.Text); m != nil {
			ft.declared[m[1]] = true
		}
		if m := reGloblDirective.FindStringSubmatch(l.Text); m != nil {
			ft.exported[m[1]] = true
		}
	}
	return ft
}

// IsDeclaredFunction reports whether name was declared via `.type`.
func (ft *FunctionTable) IsDeclaredFunction(name string) bool {
	return ft.declared[name]
}

// IsExportedFunction reports whether a declared function is also
// `.globl`-exported, and therefore must never be treated as dead code
// by any rule that might otherwise consider eliding it.
func (ft *FunctionTable) IsExportedFunction(name string) bool {
	return ft.declared[name] && ft.exported[name]
}

// functionBounds locates the half-open [declPos, sizePos) region of
// the function named by the `.type NAME,@function` directive at
// declPos, by scanning forward for the matching `.size NAME,...`
// directive. Per the data model, function regions are inferred on
// demand and never materialized across buffer mutation.
func functionBounds(lines []Line, declPos int) (start, end int, name string, ok bool) {
	m := reTypeFunction.FindStringSubmatch(lines[declPos].Text)
	if m == nil {
		return 0, 0, "", false
	}
	name = m[1]
	for i := declPos + 1; i < len(lines); i++ {
		if sm := reSizeDirective.FindStringSubmatch(lines[i].Text); sm != nil && sm[1] == name {
			return declPos, i, name, true
		}
	}
	return declPos, len(lines), name, true
}

// enclosingFunctionStart walks backwards from pos to the nearest
// `.type NAME,@function` declaration, returning its index and name.
func enclosingFunctionStart(lines []Line, pos int) (start int, name string, ok bool) {
	for i := pos; i >= 0; i-- {
		if m := reTypeFunction.FindStringSubmatch(lines[i].Text); m != nil {
			return i, m[1], true
		}
	}
	return 0, "", false
}

// enclosingFunctionEnd walks forward from pos to the function's
// `.size` directive, defaulting to end-of-buffer if absent.
func enclosingFunctionEnd(lines []Line, pos int, name string) int {
	for i := pos; i < len(lines); i++ {
		if sm := reSizeDirective.FindStringSubmatch(lines[i].Text); sm != nil && sm[1] == name {
			return i
		}
	}
	return len(lines)
}

// isInterruptHandler reports whether the function occupying
// [start,end) terminates with rte rather than rts, per §4.5's
// interrupt-detection rule.
func isInterruptHandler(lines []Line, start, end int) bool {
	for i := end - 1; i >= start; i-- {
		mnem := lines[i].Mnemonic()
		if mnem == "rte" {
			return true
		}
		if mnem == "rts" {
			return false
		}
	}
	return false
}
