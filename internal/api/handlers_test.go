package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arvancloud/codearena/internal/store"
)

func TestValidate_RequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		req     submitRequest
		wantErr bool
	}{
		{"valid minimal", submitRequest{Code: "print(1)", Language: "python", ProblemID: "p1", UserID: "u1"}, false},
		{"missing code", submitRequest{Language: "python", ProblemID: "p1", UserID: "u1"}, true},
		{"missing language", submitRequest{Code: "x", ProblemID: "p1", UserID: "u1"}, true},
		{"missing problem id", submitRequest{Code: "x", Language: "python", UserID: "u1"}, true},
		{"missing user id", submitRequest{Code: "x", Language: "python", ProblemID: "p1"}, true},
		{"unsupported language", submitRequest{Code: "x", Language: "cobol", ProblemID: "p1", UserID: "u1"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validate(tc.req)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_Metadata(t *testing.T) {
	base := submitRequest{Code: "x", Language: "python", ProblemID: "p1", UserID: "u1"}

	tooLongTime := 30_001
	base.Metadata = &submitMetadata{TimeLimit: &tooLongTime}
	assert.Error(t, validate(base))

	tooShortTime := 99
	base.Metadata = &submitMetadata{TimeLimit: &tooShortTime}
	assert.Error(t, validate(base))

	okTime := 30_000
	base.Metadata = &submitMetadata{TimeLimit: &okTime}
	assert.NoError(t, validate(base))

	tooMuchMemory := 2_000_000
	base.Metadata = &submitMetadata{MemoryLimit: &tooMuchMemory}
	assert.Error(t, validate(base))

	tooLittleMemory := 512
	base.Metadata = &submitMetadata{MemoryLimit: &tooLittleMemory}
	assert.Error(t, validate(base))

	okMemory := 32768
	base.Metadata = &submitMetadata{MemoryLimit: &okMemory}
	assert.NoError(t, validate(base))

	badPriority := "urgent"
	base.Metadata = &submitMetadata{Priority: &badPriority}
	assert.Error(t, validate(base))

	okPriority := "high"
	base.Metadata = &submitMetadata{Priority: &okPriority}
	assert.NoError(t, validate(base))

	base.Metadata = &submitMetadata{TestCases: []testCaseInput{{ID: "c1"}}}
	assert.Error(t, validate(base))

	base.Metadata = &submitMetadata{TestCases: []testCaseInput{{ID: "c1", Input: "1", Expected: "1"}}}
	assert.NoError(t, validate(base))
}

func TestMetadataDefaults_AppliesDefaultsWhenNil(t *testing.T) {
	timeLimitMs, memoryLimitKB, priority, testCases := metadataDefaults(nil)
	assert.Equal(t, 5000, timeLimitMs)
	assert.Equal(t, 256*1024, memoryLimitKB)
	assert.Equal(t, store.PriorityNormal, priority)
	assert.Empty(t, testCases)
}

func TestMetadataDefaults_HonorsOverrides(t *testing.T) {
	timeLimit := 2000
	memoryLimit := 131072
	priority := "low"
	m := &submitMetadata{
		TimeLimit:   &timeLimit,
		MemoryLimit: &memoryLimit,
		Priority:    &priority,
		TestCases:   []testCaseInput{{ID: "c1", Input: "1", Expected: "1", StopOnFailure: true}},
	}

	gotTime, gotMemKB, gotPriority, gotCases := metadataDefaults(m)
	assert.Equal(t, 2000, gotTime)
	assert.Equal(t, 131072, gotMemKB)
	assert.Equal(t, store.PriorityLow, gotPriority)
	if assert.Len(t, gotCases, 1) {
		assert.True(t, gotCases[0].StopOnFailure)
	}
}
