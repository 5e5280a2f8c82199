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
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Logger prints a colored diff for every rule match, per §6's
// print_log/two_column_log flags.
type Logger struct {
	w          io.Writer
	enabled    bool
	twoColumn  bool
	ruleColor  *color.Color
	minusColor *color.Color
	plusColor  *color.Color
}

// NewLogger builds a Logger from the active Config.
func NewLogger(w io.Writer, cfg Config) *Logger {
	return &Logger{
		w:          w,
		enabled:    cfg.PrintLog,
		twoColumn:  cfg.TwoColumnLog,
		ruleColor:  color.New(color.FgCyan, color.Bold),
		minusColor: color.New(color.FgRed),
		plusColor:  color.New(color.FgGreen),
	}
}

// LogMatch records one rule application: the lines it consumed and the
// lines it produced.
func (lg *Logger) LogMatch(rule string, before, after []Line) {
	if lg == nil || !lg.enabled {
		return
	}
	if len(before) > 0 && before[0].Origin > 0 {
		lg.ruleColor.Fprintf(lg.w, "[%s] line %d\n", rule, before[0].Origin)
	} else {
		lg.ruleColor.Fprintf(lg.w, "[%s]\n", rule)
	}
	if lg.twoColumn {
		lg.logTwoColumn(before, after)
		return
	}
	for _, l := range before {
		lg.minusColor.Fprintf(lg.w, "- %s\n", strings.TrimSpace(l.Text))
	}
	for _, l := range after {
		lg.plusColor.Fprintf(lg.w, "+ %s\n", strings.TrimSpace(l.Text))
	}
}

// Warnf reports a recoverable analyzer problem (§7): the condition is
// logged and the surrounding rewrite simply doesn't fire.
func (lg *Logger) Warnf(format string, args ...interface{}) {
	if lg == nil {
		return
	}
	color.New(color.FgYellow).Fprintf(lg.w, "warning: "+format+"\n", args...)
}

// logTwoColumn prints before/after side by side, padding the shorter
// column with blanks so the two line up row for row.
func (lg *Logger) logTwoColumn(before, after []Line) {
	n := len(before)
	if len(after) > n {
		n = len(after)
	}
	width := 0
	for _, l := range before {
		if len(l.Text) > width {
			width = len(l.Text)
		}
	}
	for i := 0; i < n; i++ {
		var left, right string
		if i < len(before) {
			left = strings.TrimSpace(before[i].Text)
		}
		if i < len(after) {
			right = strings.TrimSpace(after[i].Text)
		}
		lg.minusColor.Fprintf(lg.w, "%-*s", width, left)
		fmt.Fprint(lg.w, "  |  ")
		lg.plusColor.Fprintln(lg.w, right)
	}
}

// Summary prints a per-rule match count table.
func (lg *Logger) Summary(stats map[string]int) {
	if lg == nil || !lg.enabled || len(stats) == 0 {
		return
	}
	lg.ruleColor.Fprintln(lg.w, "optimization summary:")
	for name, n := range stats {
		fmt.Fprintf(lg.w, "  %-40s %d\n", name, n)
	}
}
