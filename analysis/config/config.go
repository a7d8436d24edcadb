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

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// SinkSpec names an allocation function and the position of its size argument.
type SinkSpec struct {
	Name string `yaml:"name"`
	Arg  int    `yaml:"arg"`
}

// DefaultSinks is the built-in allocation table. kcalloc appears twice because
// both its count and its element-size argument feed the allocation size.
var DefaultSinks = []SinkSpec{
	{"dma_alloc_from_coherent", 1},
	{"__kmalloc", 0},
	{"kmalloc", 0},
	{"__kmalloc_node", 0},
	{"kmalloc_node", 0},
	{"kzalloc", 0},
	{"kcalloc", 0},
	{"kcalloc", 1},
	{"kmemdup", 1},
	{"memdup_user", 1},
	{"pci_alloc_consistent", 1},
	{"__vmalloc", 0},
	{"vmalloc", 0},
	{"vmalloc_user", 0},
	{"vmalloc_node", 0},
	{"vzalloc", 0},
	{"vzalloc_node", 0},
}

// Config carries all tunables of an analysis run. Fields not present in the
// yaml file keep their defaults.
type Config struct {
	Options `yaml:",inline"`

	sourceFile string

	// Sinks overrides the allocation-sink table when non-empty.
	Sinks []SinkSpec `yaml:"sinks"`

	// if the FuncFilter is specified
	funcFilterRegex *regexp.Regexp
}

// Options are the scalar settings of a run.
type Options struct {
	// PtrBits is the pointer width of the analyzed target in bits.
	PtrBits uint `yaml:"ptr-bits"`

	// MaxRangeIterations caps the per-function sweeps of the range pass.
	MaxRangeIterations int `yaml:"max-range-iterations"`

	// MaxOuterIterations is a ceiling on driver iterations over the three
	// passes; 0 means the built-in default.
	MaxOuterIterations int `yaml:"max-outer-iterations"`

	// SolverTimeoutMillis bounds each satisfiability query; expired queries
	// report timeout status.
	SolverTimeoutMillis int `yaml:"solver-timeout-millis"`

	// Jobs is the number of functions checked concurrently after the
	// fixed point; 0 means one per CPU.
	Jobs int `yaml:"jobs"`

	// FuncFilter restricts checking to functions matching the regexp.
	FuncFilter string `yaml:"func-filter"`

	// ReportModel adds a model: section to sat reports.
	ReportModel bool `yaml:"report-model"`

	// LogLevel controls the verbosity of the tool.
	LogLevel int `yaml:"log-level"`
}

// Default values for the options above.
const (
	DefaultPtrBits            = 64
	DefaultMaxRangeIterations = 5
	DefaultMaxOuterIterations = 64
	DefaultSolverTimeout      = 10000
)

// NewDefault returns the default configuration.
func NewDefault() *Config {
	return &Config{
		Options: Options{
			PtrBits:             DefaultPtrBits,
			MaxRangeIterations:  DefaultMaxRangeIterations,
			MaxOuterIterations:  DefaultMaxOuterIterations,
			SolverTimeoutMillis: DefaultSolverTimeout,
			LogLevel:            int(InfoLevel),
		},
	}
}

// Load reads a configuration from a yaml file.
func Load(filename string) (*Config, error) {
	cfg := NewDefault()
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config file: %w", err)
	}
	cfg.sourceFile = filename
	return cfg.finalize()
}

func (c *Config) finalize() (*Config, error) {
	if c.LogLevel == 0 {
		c.LogLevel = int(InfoLevel)
	}
	if c.PtrBits == 0 {
		c.PtrBits = DefaultPtrBits
	}
	if c.MaxRangeIterations <= 0 {
		c.MaxRangeIterations = DefaultMaxRangeIterations
	}
	if c.MaxOuterIterations <= 0 {
		c.MaxOuterIterations = DefaultMaxOuterIterations
	}
	if c.SolverTimeoutMillis <= 0 {
		c.SolverTimeoutMillis = DefaultSolverTimeout
	}
	if c.FuncFilter != "" {
		r, err := regexp.Compile(c.FuncFilter)
		if err != nil {
			return nil, fmt.Errorf("invalid func-filter: %w", err)
		}
		c.funcFilterRegex = r
	}
	return c, nil
}

// SinkTable returns the effective allocation-sink table.
func (c *Config) SinkTable() []SinkSpec {
	if len(c.Sinks) > 0 {
		return c.Sinks
	}
	return DefaultSinks
}

// MatchFuncFilter returns true when the function name passes the filter, or
// when no filter is set.
func (c *Config) MatchFuncFilter(name string) bool {
	if c.funcFilterRegex != nil {
		return c.funcFilterRegex.MatchString(name)
	}
	return true
}

// Verbose returns true when the verbosity setting is Debug or Trace.
func (c *Config) Verbose() bool {
	return c.LogLevel >= int(DebugLevel)
}
