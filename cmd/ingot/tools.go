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

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ingot-tools/ingot/analysis"
	"github.com/ingot-tools/ingot/analysis/config"
	"github.com/ingot-tools/ingot/analysis/ir"
	"github.com/ingot-tools/ingot/analysis/irload"
	"github.com/ingot-tools/ingot/internal/graphutil"
	"golang.org/x/term"
)

// flags are the options shared by every subcommand.
type flags struct {
	configPath string
	verbose    bool
	jobs       int
	model      bool
	noColor    bool
	inputs     []string
}

func newFlags(name string, args []string) (*flags, error) {
	fl := &flags{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&fl.configPath, "config", "", "config file path")
	fs.BoolVar(&fl.verbose, "v", false, "verbose output")
	fs.IntVar(&fl.jobs, "jobs", 0, "checker parallelism (0 = one per CPU)")
	fs.BoolVar(&fl.model, "model", false, "report solver models for sat findings")
	fs.BoolVar(&fl.noColor, "no-color", false, "disable colored output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fl.inputs = fs.Args()
	if len(fl.inputs) == 0 {
		return nil, fmt.Errorf("expected at least one IR module file")
	}
	return fl, nil
}

// loadState loads the configuration and modules and runs the pipeline to its
// fixed point.
func loadState(fl *flags) (*analysis.State, error) {
	cfg := config.NewDefault()
	if fl.configPath != "" {
		var err error
		cfg, err = config.Load(fl.configPath)
		if err != nil {
			return nil, err
		}
	}
	if fl.verbose {
		cfg.LogLevel = int(config.DebugLevel)
	}
	if fl.jobs > 0 {
		cfg.Jobs = fl.jobs
	}
	if fl.model {
		cfg.ReportModel = true
	}

	var modules []*ir.Module
	for _, path := range fl.inputs {
		m, err := irload.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		modules = append(modules, m)
	}

	s := analysis.NewProgramState(cfg, modules...)
	s.Annotate()
	if _, err := s.RunFixedPoint(); err != nil {
		return nil, err
	}
	return s, nil
}

func (fl *flags) colored() bool {
	return !fl.noColor && term.IsTerminal(int(os.Stdout.Fd()))
}

func runCheck(fl *flags) error {
	s, err := loadState(fl)
	if err != nil {
		return err
	}
	return s.Check(os.Stdout, fl.colored())
}

func runTaint(fl *flags) error {
	s, err := loadState(fl)
	if err != nil {
		return err
	}
	s.Taint.DumpTaints(os.Stdout)
	return nil
}

func runRange(fl *flags) error {
	s, err := loadState(fl)
	if err != nil {
		return err
	}
	s.Ranges.DumpRanges(os.Stdout)
	return nil
}

func runCallgraph(fl *flags) error {
	s, err := loadState(fl)
	if err != nil {
		return err
	}
	s.CallGraph.DumpFuncPtrs(os.Stdout)
	cg := graphutil.NewCallGraph(s.Prog, s.CallGraph)
	cycles := graphutil.FindAllElementaryCycles(cg)
	for _, cyc := range cycles {
		fmt.Print("cycle:")
		for _, id := range cyc {
			fmt.Printf(" %s", s.Prog.FuncAt(int(id)).FName)
		}
		fmt.Println()
	}
	return nil
}
