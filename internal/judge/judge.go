// Package judge implements the Judge (JD): output normalization,
// exact/token/float/special comparison, per-test verdicts, and
// aggregate scoring.
package judge

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode selects the comparison algorithm.
type Mode string

const (
	ModeExact   Mode = "exact"
	ModeToken   Mode = "token"
	ModeFloat   Mode = "float"
	ModeSpecial Mode = "special"
)

// Verdict is a single test's or a submission's aggregate judgment.
type Verdict string

const (
	VerdictAccepted     Verdict = "AC"
	VerdictWrongAnswer  Verdict = "WA"
	VerdictTimeLimit    Verdict = "TLE"
	VerdictMemoryLimit  Verdict = "MLE"
	VerdictRuntimeError Verdict = "RE"
	VerdictCompileError Verdict = "CE"
	VerdictInternal     Verdict = "IE"
	VerdictSkipped      Verdict = "SK"
)

// Config is the per-problem judge configuration, with the spec's
// stated defaults.
type Config struct {
	Mode                     Mode
	FloatTolerance           float64
	CaseSensitive            bool
	IgnoreTrailingWhitespace bool
	IgnoreTrailingNewlines   bool
	TestWeights              map[string]float64
	PartialScoring           bool
	SpecialJudgePath         string
}

// DefaultConfig matches spec.md §4.7.
func DefaultConfig() Config {
	return Config{
		Mode:                     ModeExact,
		FloatTolerance:           1e-6,
		CaseSensitive:            true,
		IgnoreTrailingWhitespace: true,
		IgnoreTrailingNewlines:   true,
		PartialScoring:           true,
	}
}

func (c Config) weight(testID string) float64 {
	if w, ok := c.TestWeights[testID]; ok {
		return w
	}
	return 1.0
}

// normalize applies the configured whitespace/case rules to one
// stream before exact or token comparison.
func (c Config) normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if c.IgnoreTrailingWhitespace {
			line = strings.TrimRight(line, " \t\r")
		}
		out = append(out, line)
	}
	if c.IgnoreTrailingNewlines {
		for len(out) > 0 && out[len(out)-1] == "" {
			out = out[:len(out)-1]
		}
	}
	result := strings.Join(out, "\n")
	if !c.CaseSensitive {
		result = strings.ToLower(result)
	}
	return result
}

// CaseOutcome is one test case's execution status as reported by the
// harness, independent of comparison: a non-success status overrides
// whatever the comparison would have said.
type CaseOutcome struct {
	TestID         string
	HarnessFailed  bool
	HarnessVerdict Verdict // set when HarnessFailed: TLE, MLE, RE, or IE
	Expected       string
	Actual         string
}

// CaseResult is the judge's per-test output.
type CaseResult struct {
	TestID  string
	Verdict Verdict
	Score   float64
	Weight  float64
	Detail  string
}

// Evaluate judges one test case.
func (c Config) Evaluate(tc CaseOutcome) CaseResult {
	weight := c.weight(tc.TestID)

	if tc.HarnessFailed {
		return CaseResult{TestID: tc.TestID, Verdict: tc.HarnessVerdict, Score: 0, Weight: weight}
	}

	switch c.Mode {
	case ModeExact:
		return c.evaluateExact(tc, weight)
	case ModeToken:
		return c.evaluateToken(tc, weight)
	case ModeFloat:
		return c.evaluateFloat(tc, weight)
	case ModeSpecial:
		// Evaluate does not run the special checker; EvaluateSpecial
		// does, with its own temp files and 30s timeout. Here special
		// mode yields an IE result.
		return CaseResult{TestID: tc.TestID, Verdict: VerdictInternal, Score: 0, Weight: weight, Detail: "special mode requires EvaluateSpecial"}
	default:
		return CaseResult{TestID: tc.TestID, Verdict: VerdictInternal, Score: 0, Weight: weight, Detail: fmt.Sprintf("unknown comparison mode %q", c.Mode)}
	}
}

func (c Config) evaluateExact(tc CaseOutcome, weight float64) CaseResult {
	expected := c.normalize(tc.Expected)
	actual := c.normalize(tc.Actual)
	if expected == actual {
		return CaseResult{TestID: tc.TestID, Verdict: VerdictAccepted, Score: weight, Weight: weight}
	}
	return CaseResult{TestID: tc.TestID, Verdict: VerdictWrongAnswer, Score: 0, Weight: weight}
}

func (c Config) evaluateToken(tc CaseOutcome, weight float64) CaseResult {
	expected := strings.Fields(c.normalize(tc.Expected))
	actual := strings.Fields(c.normalize(tc.Actual))

	if len(expected) != len(actual) {
		return CaseResult{
			TestID: tc.TestID, Verdict: VerdictWrongAnswer, Score: 0, Weight: weight,
			Detail: fmt.Sprintf("token count mismatch: expected %d, got %d", len(expected), len(actual)),
		}
	}
	for i := range expected {
		if expected[i] != actual[i] {
			return CaseResult{
				TestID: tc.TestID, Verdict: VerdictWrongAnswer, Score: 0, Weight: weight,
				Detail: fmt.Sprintf("first mismatch at token %d: expected %q, got %q", i, expected[i], actual[i]),
			}
		}
	}
	return CaseResult{TestID: tc.TestID, Verdict: VerdictAccepted, Score: weight, Weight: weight}
}

func (c Config) evaluateFloat(tc CaseOutcome, weight float64) CaseResult {
	expected := strings.Fields(c.normalize(tc.Expected))
	actual := strings.Fields(c.normalize(tc.Actual))

	if len(expected) != len(actual) {
		return CaseResult{
			TestID: tc.TestID, Verdict: VerdictWrongAnswer, Score: 0, Weight: weight,
			Detail: fmt.Sprintf("value count mismatch: expected %d, got %d", len(expected), len(actual)),
		}
	}

	for i := range expected {
		e, eErr := strconv.ParseFloat(expected[i], 64)
		a, aErr := strconv.ParseFloat(actual[i], 64)
		if eErr != nil || aErr != nil {
			return CaseResult{
				TestID: tc.TestID, Verdict: VerdictWrongAnswer, Score: 0, Weight: weight,
				Detail: fmt.Sprintf("non-numeric value at position %d", i),
			}
		}
		if !floatsMatch(e, a, c.FloatTolerance) {
			return CaseResult{
				TestID: tc.TestID, Verdict: VerdictWrongAnswer, Score: 0, Weight: weight,
				Detail: fmt.Sprintf("value mismatch at position %d: expected %v, got %v", i, e, a),
			}
		}
	}
	return CaseResult{TestID: tc.TestID, Verdict: VerdictAccepted, Score: weight, Weight: weight}
}

func floatsMatch(e, a, tol float64) bool {
	if e != e && a != a { // both NaN
		return true
	}
	if isInf(e) || isInf(a) {
		return isInf(e) && isInf(a) && sign(e) == sign(a)
	}
	diff := e - a
	if diff < 0 {
		diff = -diff
	}
	if diff <= tol {
		return true
	}
	rel := tol * abs(e)
	return diff <= rel
}

func isInf(f float64) bool { return f > 1e308 || f < -1e308 }
func sign(f float64) int {
	if f < 0 {
		return -1
	}
	return 1
}
func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Aggregate combines per-test results into a final verdict and score,
// per the priority list CE -> TLE -> MLE -> RE -> WA -> AC.
type Aggregate struct {
	Verdict       Verdict
	Score         float64
	MaxScore      float64
	ScorePercent  float64
	PassedTests   int
	TotalTests    int
	CaseResults   []CaseResult
}

func Aggregation(results []CaseResult, compileFailed bool) Aggregate {
	if compileFailed {
		return Aggregate{Verdict: VerdictCompileError, TotalTests: len(results)}
	}

	var score, maxScore float64
	passed := 0
	priority := map[Verdict]int{
		VerdictCompileError: 0,
		VerdictTimeLimit:    1,
		VerdictMemoryLimit:  2,
		VerdictRuntimeError: 3,
		VerdictWrongAnswer:  4,
		VerdictAccepted:     5,
	}
	worst := VerdictAccepted
	worstRank := priority[VerdictAccepted]

	for _, r := range results {
		score += r.Score
		maxScore += r.Weight
		if r.Verdict == VerdictAccepted {
			passed++
		}
		if rank, ok := priority[r.Verdict]; ok && rank < worstRank {
			worst = r.Verdict
			worstRank = rank
		}
	}

	var pct float64
	if maxScore > 0 {
		pct = score / maxScore * 100
	}

	return Aggregate{
		Verdict:      worst,
		Score:        score,
		MaxScore:     maxScore,
		ScorePercent: pct,
		PassedTests:  passed,
		TotalTests:   len(results),
		CaseResults:  results,
	}
}
