package api

import (
	"github.com/arvancloud/codearena/internal/apierr"
	"github.com/arvancloud/codearena/internal/harness"
	"github.com/arvancloud/codearena/internal/store"
)

const maxTestCases = 100

func validate(req submitRequest) error {
	if req.Language == "" || req.ProblemID == "" || req.UserID == "" {
		return apierr.New(apierr.MissingFields, "code, language, problemId, and userId are required")
	}
	if req.Code == "" {
		return apierr.New(apierr.EmptyCode, "code must not be empty")
	}
	if !store.SupportedLanguages[req.Language] {
		return apierr.New(apierr.UnsupportedLang, "unsupported language: "+req.Language)
	}

	if req.Metadata == nil {
		return nil
	}
	if req.Metadata.TimeLimit != nil && (*req.Metadata.TimeLimit < 100 || *req.Metadata.TimeLimit > 30_000) {
		return apierr.New(apierr.InvalidTimeLimit, "timeLimit must be between 100 and 30000 ms")
	}
	if req.Metadata.MemoryLimit != nil && (*req.Metadata.MemoryLimit < 1024 || *req.Metadata.MemoryLimit > 1_048_576) {
		return apierr.New(apierr.InvalidMemoryLimit, "memoryLimit must be between 1024 and 1048576 KB")
	}
	if req.Metadata.Priority != nil {
		switch store.Priority(*req.Metadata.Priority) {
		case store.PriorityLow, store.PriorityNormal, store.PriorityHigh:
		default:
			return apierr.New(apierr.InvalidPriority, "priority must be one of low, normal, high")
		}
	}
	if len(req.Metadata.TestCases) > maxTestCases {
		return apierr.New(apierr.InvalidTestCases, "at most 100 test cases are allowed")
	}
	for _, tc := range req.Metadata.TestCases {
		if tc.Input == "" && tc.Expected == "" {
			return apierr.New(apierr.InvalidTestCases, "each test case requires input and expectedOutput")
		}
	}
	return nil
}

func metadataDefaults(m *submitMetadata) (timeLimitMs, memoryLimitKB int, priority store.Priority, testCases []harness.TestCase) {
	timeLimitMs = 5000
	memoryLimitKB = 256 * 1024
	priority = store.PriorityNormal

	if m == nil {
		return
	}
	if m.TimeLimit != nil {
		timeLimitMs = *m.TimeLimit
	}
	if m.MemoryLimit != nil {
		memoryLimitKB = *m.MemoryLimit
	}
	if m.Priority != nil {
		priority = store.Priority(*m.Priority)
	}
	for _, tc := range m.TestCases {
		testCases = append(testCases, harness.TestCase{
			ID: tc.ID, Input: tc.Input, Expected: tc.Expected, StopOnFailure: tc.StopOnFailure,
		})
	}
	return
}
