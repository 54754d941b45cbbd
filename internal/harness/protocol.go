package harness

import (
	"encoding/json"
	"strings"
)

const resultPrefix = "__RESULT__"

// runnerResult is the JSON payload an in-sandbox runner emits on the
// one line prefixed __RESULT__. A runner that never emits this line
// (e.g. a bare interpreter with no wrapper) falls back to raw stdout
// and the sandbox exit code, handled by the caller.
type runnerResult struct {
	Stdout       string `json:"stdout"`
	Stderr       string `json:"stderr"`
	ExitCode     int    `json:"exitCode"`
	DurationMs   int64  `json:"durationMs"`
	PeakMemoryKB int    `json:"peakMemoryKb"`
	Error        string `json:"error,omitempty"`
}

// parseRunnerProtocol scans raw stdout for the __RESULT__ sentinel
// line and decodes it. ok is false when no such line is present.
func parseRunnerProtocol(rawStdout string) (runnerResult, bool) {
	lines := strings.Split(rawStdout, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, resultPrefix) {
			continue
		}
		payload := strings.TrimPrefix(trimmed, resultPrefix)
		var res runnerResult
		if err := json.Unmarshal([]byte(payload), &res); err != nil {
			return runnerResult{}, false
		}
		return res, true
	}
	return runnerResult{}, false
}
