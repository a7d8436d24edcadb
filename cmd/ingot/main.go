// Copyright the Ingot Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command ingot analyzes typed-SSA IR modules for integer bugs reachable
// from untrusted inputs.
package main

import (
	"fmt"
	"os"

	"github.com/ingot-tools/ingot/analysis"
)

const usage = `Ingot: whole-program integer bug analyzer
Usage:
  ingot [tool] [options] <IR module file(s)>
Tools:
  - check: run the full pipeline and report integer bugs at allocation sinks
  - taint: run the analyses and dump the global taint store
  - callgraph: run the analyses and dump resolved call targets and recursion cycles
  - range: run the analyses and dump the identifier range summaries
Examples:
  Check a module set: ingot check --config=config.yaml m1.yaml m2.yaml
  Inspect taint: ingot taint m1.yaml`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "error: expected subcommand\n%s\n", usage)
		os.Exit(2)
	}

	// hardcode help flag
	if snd := os.Args[1]; snd == "-help" || snd == "--help" {
		fmt.Println(usage)
		return
	}

	// hardcode version flag
	if snd := os.Args[1]; snd == "-version" || snd == "--version" {
		fmt.Println(analysis.Version)
		return
	}

	args := os.Args[2:]
	switch cmd := os.Args[1]; cmd {
	case "check":
		runTool(cmd, args, runCheck)
	case "taint":
		runTool(cmd, args, runTaint)
	case "callgraph":
		runTool(cmd, args, runCallgraph)
	case "range":
		runTool(cmd, args, runRange)
	default:
		fmt.Fprintf(os.Stderr, "error: unknown subcommand %q\n%s\n", cmd, usage)
		os.Exit(2)
	}
}

func runTool(name string, args []string, run func(*flags) error) {
	fl, err := newFlags(name, args)
	if err != nil {
		errExit(err)
	}
	if err := run(fl); err != nil {
		errExit(err)
	}
}

func errExit(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
