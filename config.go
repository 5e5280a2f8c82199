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

// Config is the fixed map of booleans that selects which rule
// families are enabled, per §6. It is populated once from CLI flags
// in main.go and passed by value into the driver; nothing in the
// engine reads configuration from a file or environment variable.
type Config struct {
	SaveOptimizations bool
	PrintLog          bool
	TwoColumnLog      bool

	OptimizeInlineAsmBlocks bool

	UseFindFreeAfterUse bool
	UseFindNotUsed      bool

	UseFabri1983MovemOptimizations bool
	UseFabri1983Optimizations      bool

	UseTasOnIOMemory bool

	OptimizeMulHighWordImportant    bool
	OptimizeMulHighWordNotImportant bool
	OptimizeDivisionHighWordNotImportant bool

	UseReplaceAddqlSubqlByAddqwSubqw bool

	UseReplaceLoadSubroutineIntoAnByDirectCall bool
	UseAggressiveAvoidClearBeforeMoveWord      bool
	UseAggressiveCompactTwoWordsPush           bool
	UseAggressiveClrSp                         bool
	UseAggressiveReplaceLongIndirectByWord     bool

	// RewriteLongIndexToWord is §4.1's optional long-indexed
	// addressing rewrite; off by default, as it can alter addressing
	// when the index exceeds 16 bits.
	RewriteLongIndexToWord bool

	MultiLineOptimizationLimit int
}

// DefaultConfig matches the teacher's posture of sane, mostly-on
// defaults with the explicitly unsafe "aggressive" families left off.
func DefaultConfig() Config {
	return Config{
		SaveOptimizations:                   true,
		PrintLog:                            false,
		TwoColumnLog:                        false,
		OptimizeInlineAsmBlocks:             false,
		UseFindFreeAfterUse:                 true,
		UseFindNotUsed:                      true,
		UseFabri1983MovemOptimizations:      true,
		UseFabri1983Optimizations:           true,
		UseTasOnIOMemory:                    false,
		OptimizeMulHighWordImportant:        false,
		OptimizeMulHighWordNotImportant:     true,
		OptimizeDivisionHighWordNotImportant: true,
		UseReplaceAddqlSubqlByAddqwSubqw:    true,

		UseReplaceLoadSubroutineIntoAnByDirectCall: false,
		UseAggressiveAvoidClearBeforeMoveWord:      false,
		UseAggressiveCompactTwoWordsPush:           false,
		UseAggressiveClrSp:                         false,
		UseAggressiveReplaceLongIndirectByWord:     false,

		RewriteLongIndexToWord:    false,
		MultiLineOptimizationLimit: 6,
	}
}
