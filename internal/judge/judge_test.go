package judge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateExact(t *testing.T) {
	c := DefaultConfig()

	r := c.Evaluate(CaseOutcome{TestID: "1", Expected: "42\n", Actual: "42"})
	assert.Equal(t, VerdictAccepted, r.Verdict)
	assert.Equal(t, 1.0, r.Score)

	r = c.Evaluate(CaseOutcome{TestID: "2", Expected: "42", Actual: "43"})
	assert.Equal(t, VerdictWrongAnswer, r.Verdict)
	assert.Equal(t, 0.0, r.Score)
}

func TestEvaluateToken(t *testing.T) {
	c := DefaultConfig()
	c.Mode = ModeToken

	r := c.Evaluate(CaseOutcome{TestID: "1", Expected: "1 2 3", Actual: "1   2\n3"})
	assert.Equal(t, VerdictAccepted, r.Verdict)

	r = c.Evaluate(CaseOutcome{TestID: "2", Expected: "1 2 3", Actual: "1 2 4"})
	assert.Equal(t, VerdictWrongAnswer, r.Verdict)
	assert.Contains(t, r.Detail, "token 2")
}

func TestEvaluateFloat(t *testing.T) {
	c := DefaultConfig()
	c.Mode = ModeFloat
	c.FloatTolerance = 1e-3

	r := c.Evaluate(CaseOutcome{TestID: "1", Expected: "3.14159", Actual: "3.14160"})
	assert.Equal(t, VerdictAccepted, r.Verdict)

	r = c.Evaluate(CaseOutcome{TestID: "2", Expected: "1.0", Actual: "2.0"})
	assert.Equal(t, VerdictWrongAnswer, r.Verdict)
}

func TestEvaluateHarnessOverride(t *testing.T) {
	c := DefaultConfig()
	r := c.Evaluate(CaseOutcome{TestID: "1", HarnessFailed: true, HarnessVerdict: VerdictTimeLimit})
	assert.Equal(t, VerdictTimeLimit, r.Verdict)
	assert.Equal(t, 0.0, r.Score)
}

func TestAggregationPriority(t *testing.T) {
	results := []CaseResult{
		{TestID: "1", Verdict: VerdictAccepted, Score: 1, Weight: 1},
		{TestID: "2", Verdict: VerdictWrongAnswer, Score: 0, Weight: 1},
		{TestID: "3", Verdict: VerdictTimeLimit, Score: 0, Weight: 1},
	}
	agg := Aggregation(results, false)
	assert.Equal(t, VerdictTimeLimit, agg.Verdict)
	assert.Equal(t, 1.0, agg.Score)
	assert.Equal(t, 3.0, agg.MaxScore)
	assert.InDelta(t, 33.33, agg.ScorePercent, 0.1)
	assert.Equal(t, 1, agg.PassedTests)
}

func TestAggregationCompileFailed(t *testing.T) {
	agg := Aggregation(nil, true)
	assert.Equal(t, VerdictCompileError, agg.Verdict)
}

func TestParseBarewordOutput(t *testing.T) {
	c := DefaultConfig()
	c.Mode = ModeSpecial

	assert.Equal(t, VerdictAccepted, c.parseBarewordOutput("1", 1, "AC").Verdict)
	assert.Equal(t, VerdictWrongAnswer, c.parseBarewordOutput("1", 1, "wa").Verdict)
	r := c.parseBarewordOutput("1", 2, "0.5")
	assert.Equal(t, VerdictWrongAnswer, r.Verdict)
	assert.Equal(t, 1.0, r.Score)
}
