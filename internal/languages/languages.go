// Package languages is the static table of supported language
// runtimes: the sandbox image and compile/run commands the Execution
// Harness uses for each submitted language.
package languages

import "fmt"

// Spec describes how to build and run one language's submission
// inside its sandbox image.
type Spec struct {
	Image      string
	SourceFile string
	CompileCmd []string // empty for interpreted languages
	RunCmd     []string
	// BinaryName is the compile step's output path (relative to the
	// sandbox work dir) that must be carried into the run container.
	// Empty for interpreted languages, which run the source directly.
	BinaryName string
}

// Table maps a supported language tag to its runtime spec. Image tags
// name a fixed runtime version (major, or major.minor); they are tags,
// not digests.
var Table = map[string]Spec{
	"python": {
		Image:      "codearena-runner-python:3.12",
		SourceFile: "solution.py",
		RunCmd:     []string{"python3", "solution.py"},
	},
	"javascript": {
		Image:      "codearena-runner-node:20",
		SourceFile: "solution.js",
		RunCmd:     []string{"node", "solution.js"},
	},
	"typescript": {
		Image:      "codearena-runner-node:20",
		SourceFile: "solution.ts",
		CompileCmd: []string{"tsc", "solution.ts", "--outFile", "solution.js"},
		RunCmd:     []string{"node", "solution.js"},
		BinaryName: "solution.js",
	},
	"java": {
		Image:      "codearena-runner-java:21",
		SourceFile: "Solution.java",
		CompileCmd: []string{"javac", "Solution.java"},
		RunCmd:     []string{"java", "Solution"},
		BinaryName: "Solution.class",
	},
	"cpp": {
		Image:      "codearena-runner-cpp:12",
		SourceFile: "solution.cpp",
		CompileCmd: []string{"g++", "-O2", "-std=c++20", "-o", "solution", "solution.cpp"},
		RunCmd:     []string{"./solution"},
		BinaryName: "solution",
	},
	"c": {
		Image:      "codearena-runner-cpp:12",
		SourceFile: "solution.c",
		CompileCmd: []string{"gcc", "-O2", "-std=c17", "-o", "solution", "solution.c"},
		RunCmd:     []string{"./solution"},
		BinaryName: "solution",
	},
	"go": {
		Image:      "codearena-runner-go:1.22",
		SourceFile: "solution.go",
		CompileCmd: []string{"go", "build", "-o", "solution", "solution.go"},
		RunCmd:     []string{"./solution"},
		BinaryName: "solution",
	},
	"rust": {
		Image:      "codearena-runner-rust:1.78",
		SourceFile: "solution.rs",
		CompileCmd: []string{"rustc", "-O", "-o", "solution", "solution.rs"},
		RunCmd:     []string{"./solution"},
		BinaryName: "solution",
	},
	"ruby": {
		Image:      "codearena-runner-ruby:3.3",
		SourceFile: "solution.rb",
		RunCmd:     []string{"ruby", "solution.rb"},
	},
	"php": {
		Image:      "codearena-runner-php:8.3",
		SourceFile: "solution.php",
		RunCmd:     []string{"php", "solution.php"},
	},
}

// Get returns the Spec for language, or an error if unsupported.
func Get(language string) (Spec, error) {
	spec, ok := Table[language]
	if !ok {
		return Spec{}, fmt.Errorf("unsupported language: %s", language)
	}
	return spec, nil
}

// NeedsCompile reports whether language has a separate compile step.
func (s Spec) NeedsCompile() bool {
	return len(s.CompileCmd) > 0
}
