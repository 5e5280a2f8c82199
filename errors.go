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

import "errors"

// ErrUnreadableInput is returned when the input file cannot be opened
// or read; a fatal, exit-1 condition per §7.
var ErrUnreadableInput = errors.New("m68kopt: cannot read input file")

// ErrUnwritableOutput is returned when the output file cannot be
// created or written.
var ErrUnwritableOutput = errors.New("m68kopt: cannot write output file")

// ErrArgument is returned for a malformed command line: wrong argument
// count, or an unrecognized flag value.
var ErrArgument = errors.New("m68kopt: invalid arguments")
