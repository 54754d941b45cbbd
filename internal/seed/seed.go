// Package seed loads a local TOML fixture of problems and their test
// cases for development and end-to-end scenarios, grounded on
// bobmcallan-vire's go-toml/v2 config-loading pattern.
package seed

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// TestCase is one fixture test case for a problem.
type TestCase struct {
	ID            string `toml:"id"`
	Input         string `toml:"input"`
	Expected      string `toml:"expected"`
	StopOnFailure bool   `toml:"stop_on_failure"`
}

// Problem is one fixture problem: a reference solution in some
// language plus the test cases judged against it.
type Problem struct {
	ID            string     `toml:"id"`
	Title         string     `toml:"title"`
	Language      string     `toml:"language"`
	Solution      string     `toml:"solution"`
	TimeLimitMs   int        `toml:"time_limit_ms"`
	MemoryLimitMB int        `toml:"memory_limit_mb"`
	TestCases     []TestCase `toml:"test_cases"`
}

// Bundle is the top-level fixture document: a set of problems.
type Bundle struct {
	Problems []Problem `toml:"problem"`
}

// Load reads and parses a TOML fixture file from path.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var bundle Bundle
	if err := toml.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &bundle, nil
}
