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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const cliFixture = `	.text
	.globl main
	.type main,@function
main:
	move.l #0,%d0
	rts
	.size main,.-main
`

func TestCLIOptimizesFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.s")
	out := filepath.Join(dir, "out.s")
	if err := os.WriteFile(in, []byte(cliFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	cmd.SetArgs([]string{in, out})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !strings.Contains(string(data), "moveq #0,%d0") {
		t.Errorf("output missing the moveq rewrite:\n%s", data)
	}
}

func TestCLIDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.s")
	out := filepath.Join(dir, "out.s")
	if err := os.WriteFile(in, []byte(cliFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--dry_run", in, out})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("dry run must not produce an output file")
	}
}

func TestCLIMissingInputFails(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCmd()
	cmd.SetArgs([]string{filepath.Join(dir, "nosuch.s"), filepath.Join(dir, "out.s")})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for an unreadable input")
	}
}

func TestCLIWrongArgumentCountFails(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"only-one.s"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an argument-count error")
	}
}
